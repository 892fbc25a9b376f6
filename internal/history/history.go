// Package history persists the APDU exchange log. Writes go through a
// buffered channel and a single writer goroutine so that recording
// never blocks response delivery.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cardlab/emv-emulator/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS apdu_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	apdu_command TEXT NOT NULL,
	apdu_response TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_apdu_log_device ON apdu_log(device_id);
`

// Entry is one recorded exchange. Entries are append-only.
type Entry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Response  string    `json:"response"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is a sqlite-backed history log.
type Store struct {
	db      *sql.DB
	pending chan Entry
	done    chan struct{}
}

// Open creates (or opens) the database at path and starts the writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	s := &Store{
		db:      db,
		pending: make(chan Entry, 256),
		done:    make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// Record enqueues one history entry. When the queue is full the entry
// is dropped rather than stalling the session that produced it.
func (s *Store) Record(deviceID, command, response string, success bool) {
	entry := Entry{
		DeviceID:  deviceID,
		Command:   command,
		Response:  response,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}

	select {
	case s.pending <- entry:
	default:
		logging.Warn(logging.CatStore, "History queue full, entry dropped", map[string]any{
			"device": deviceID,
		})
	}
}

func (s *Store) writeLoop() {
	defer logging.RecoverAndLog("history writer", false)
	defer close(s.done)

	for entry := range s.pending {
		_, err := s.db.Exec(
			`INSERT INTO apdu_log (device_id, apdu_command, apdu_response, success, timestamp)
			 VALUES (?, ?, ?, ?, ?)`,
			entry.DeviceID, entry.Command, entry.Response, entry.Success, entry.Timestamp,
		)
		if err != nil {
			logging.Error(logging.CatStore, "History insert failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, device_id, apdu_command, apdu_response, success, timestamp
		 FROM apdu_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Command, &e.Response, &e.Success, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close drains pending writes and closes the database.
func (s *Store) Close() error {
	close(s.pending)
	<-s.done
	return s.db.Close()
}
