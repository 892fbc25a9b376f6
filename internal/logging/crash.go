package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"
)

const (
	// MaxCrashLogs is the maximum number of crash logs to keep
	MaxCrashLogs = 20
	// CrashLogMaxAge is the maximum age of crash logs before cleanup
	CrashLogMaxAge = 30 * 24 * time.Hour // 30 days
)

// CrashLogDir returns the directory for crash logs based on the platform.
func CrashLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "EMV-Emulator")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData, _ = os.UserHomeDir()
		}
		return filepath.Join(appData, "EMV-Emulator", "logs")
	default: // Linux and others
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "emv-emulator", "logs")
	}
}

// WriteCrashLog writes a crash report to a timestamped file and
// returns its path. Old crash logs are cleaned up in the background.
func WriteCrashLog(panicValue interface{}, stack []byte) (string, error) {
	dir := CrashLogDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	crashFilePath := filepath.Join(dir, fmt.Sprintf("crash_%s.log", timestamp))

	content := fmt.Sprintf(`EMV Emulator Crash Report
=========================
Time: %s
Go Version: %s
OS/Arch: %s/%s

Panic Value:
%v

Stack Trace:
%s

Build Info:
%s
`,
		time.Now().Format(time.RFC3339),
		runtime.Version(),
		runtime.GOOS, runtime.GOARCH,
		panicValue,
		string(stack),
		getBuildInfo(),
	)

	if err := os.WriteFile(crashFilePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write crash log: %w", err)
	}

	go cleanupOldCrashLogs()

	return crashFilePath, nil
}

// getBuildInfo returns build information if available.
func getBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "Build info not available"
	}
	return info.String()
}

// RecoverAndLog recovers from a panic, logs it to a file, and optionally re-panics.
// Use this as: defer logging.RecoverAndLog("context", true)
// Set rePanic to true for critical goroutines where the process should die after logging.
func RecoverAndLog(context string, rePanic bool) {
	if r := recover(); r != nil {
		stack := debug.Stack()

		// Send to Sentry if enabled
		CapturePanic(r, stack, context)

		Error(CatSystem, fmt.Sprintf("PANIC in %s: %v", context, r), map[string]any{
			"panic": fmt.Sprintf("%v", r),
			"stack": string(stack),
		})

		crashFile, err := WriteCrashLog(r, stack)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write crash log: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Crash log written to: %s\n", crashFile)
		}

		fmt.Fprintf(os.Stderr, "\n=== PANIC in %s ===\n%v\n\nStack trace:\n%s\n", context, r, string(stack))

		if rePanic {
			panic(r)
		}
	}
}

// cleanupOldCrashLogs removes old crash logs to prevent disk space buildup.
// Keeps at most MaxCrashLogs files and removes any older than CrashLogMaxAge.
func cleanupOldCrashLogs() {
	dir := CrashLogDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var crashLogs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), "crash_") && strings.HasSuffix(entry.Name(), ".log") {
			crashLogs = append(crashLogs, entry)
		}
	}

	// Names embed the timestamp, so lexical order is age order.
	sort.Slice(crashLogs, func(i, j int) bool {
		return crashLogs[i].Name() < crashLogs[j].Name()
	})

	now := time.Now()
	for i, entry := range crashLogs {
		shouldDelete := len(crashLogs)-i > MaxCrashLogs

		if info, err := entry.Info(); err == nil {
			if now.Sub(info.ModTime()) > CrashLogMaxAge {
				shouldDelete = true
			}
		}

		if shouldDelete {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
