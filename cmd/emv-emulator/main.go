package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cardlab/emv-emulator/internal/api"
	"github.com/cardlab/emv-emulator/internal/cards"
	"github.com/cardlab/emv-emulator/internal/confidence"
	"github.com/cardlab/emv-emulator/internal/config"
	"github.com/cardlab/emv-emulator/internal/emv"
	"github.com/cardlab/emv-emulator/internal/engine"
	"github.com/cardlab/emv-emulator/internal/history"
	"github.com/cardlab/emv-emulator/internal/logging"
	"github.com/cardlab/emv-emulator/internal/settings"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information and exit")
	configFlag := flag.String("config", "", "Path to config file (optional)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "EMV Emulator - contactless terminal emulation service\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  emv-emulator [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  EMV_EMULATOR_SERVER_PORT      Port to listen on (default: 8000)\n")
		fmt.Fprintf(os.Stderr, "  EMV_EMULATOR_SERVER_HOST      Host to bind to (default: 127.0.0.1)\n")
		fmt.Fprintf(os.Stderr, "  EMV_EMULATOR_DATABASE_PATH    SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  EMV_EMULATOR_SENTRY_DSN       Enable crash reporting to Sentry\n")
	}

	flag.Parse()

	if *versionFlag {
		printVersion()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	run(cfg)
}

func printVersion() {
	fmt.Printf("emv-emulator %s\n", api.Version)
	fmt.Printf("Build time: %s\n", api.BuildTime)
	fmt.Printf("Git commit: %s\n", api.GitCommit)
}

func run(cfg *config.Config) {
	logging.Init(1000, logging.Level(cfg.Logger.Level))
	if cfg.Logger.FilePath != "" {
		logging.SetFileOutput(cfg.Logger.FilePath, cfg.Logger.MaxSizeMB, cfg.Logger.MaxBackups, cfg.Logger.MaxAgeDays)
	}
	if cfg.Logger.JSONFormat {
		logging.SetJSONFormat()
	}
	logging.Info(logging.CatSystem, "EMV emulator starting", map[string]any{
		"version": api.Version,
	})

	if _, err := settings.Load(); err != nil {
		logging.Warn(logging.CatSystem, "Could not load settings, using defaults", map[string]any{
			"error": err.Error(),
		})
	}
	logging.InitSentry(api.Version, settings.IsCrashReportingEnabled())
	defer logging.FlushSentry(2 * time.Second)

	historyStore, err := history.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open history store: %v", err)
	}
	defer historyStore.Close()

	cardStore, err := cards.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open card store: %v", err)
	}
	defer cardStore.Close()

	eng := engine.New(historyStore, buildScorer(cfg), engine.Options{
		OverrideThreshold: cfg.Confidence.OverrideThreshold,
		OverrideStatus:    parseOverrideStatus(cfg.Confidence.OverrideStatus),
		ScoreTimeout:      time.Duration(cfg.Confidence.TimeoutSeconds) * time.Second,
	})

	hub := api.NewHub(eng, cardStore)
	go hub.Run()

	srv := api.NewServer(hub, eng, historyStore, cardStore)
	addr := cfg.Address()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		historyStore.Close()
		cardStore.Close()
		logging.FlushSentry(2 * time.Second)
		os.Exit(0)
	}()

	log.Printf("emv-emulator %s listening on http://%s\n", api.Version, addr)
	log.Printf("WebSocket available at ws://%s/v1/ws\n", addr)
	logging.Info(logging.CatSystem, "Server started", map[string]any{
		"address": addr,
	})

	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildScorer wires the optional confidence service. No URL means the
// engine stays fully deterministic.
func buildScorer(cfg *config.Config) engine.Scorer {
	if cfg.Confidence.ServiceURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.Confidence.TimeoutSeconds) * time.Second
	logging.Info(logging.CatSystem, "Confidence scoring enabled", map[string]any{
		"url": cfg.Confidence.ServiceURL,
	})
	return confidence.NewHTTPScorer(cfg.Confidence.ServiceURL, timeout)
}

func parseOverrideStatus(s string) emv.StatusWord {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		logging.Warn(logging.CatSystem, "Invalid override status word, using default", map[string]any{
			"value": s,
		})
		return 0
	}
	return emv.StatusWord(v)
}
