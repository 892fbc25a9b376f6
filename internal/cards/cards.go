// Package cards stores the customer card records devices can
// reference when driving APDU exchanges.
package cards

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cardlab/emv-emulator/internal/emv"
)

// ErrNotFound is returned when a card id does not exist.
var ErrNotFound = errors.New("card not found")

const schema = `
CREATE TABLE IF NOT EXISTS cards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	holder_name VARCHAR(128) NOT NULL,
	pan VARCHAR(16) NOT NULL,
	expiry DATE NOT NULL,
	cvv INTEGER NOT NULL,
	issuer_id VARCHAR(6) NOT NULL,
	track VARCHAR(4) NOT NULL,
	amount NUMERIC(10,2) DEFAULT 0.00
);
`

// Card is one stored card record.
type Card struct {
	ID         int64     `json:"id"`
	HolderName string    `json:"holder_name"`
	PAN        string    `json:"pan"`
	Expiry     time.Time `json:"expiry"`
	CVV        int       `json:"cvv"`
	IssuerID   string    `json:"issuer_id"`
	Track      string    `json:"track"`
	Amount     float64   `json:"amount"`
}

// Profile converts the stored record to the per-command card data the
// response builders consume.
func (c *Card) Profile() *emv.CardProfile {
	return &emv.CardProfile{
		PAN:        c.PAN,
		Expiry:     c.Expiry,
		HolderName: c.HolderName,
	}
}

// Store is a sqlite-backed card store.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the card store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cards db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cards schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts a card and returns it with the assigned id.
func (s *Store) Create(card Card) (Card, error) {
	res, err := s.db.Exec(
		`INSERT INTO cards (holder_name, pan, expiry, cvv, issuer_id, track, amount)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		card.HolderName, card.PAN, card.Expiry, card.CVV, card.IssuerID, card.Track, card.Amount,
	)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	card.ID, err = res.LastInsertId()
	if err != nil {
		return Card{}, fmt.Errorf("card id: %w", err)
	}
	return card, nil
}

// List returns all stored cards.
func (s *Store) List() ([]Card, error) {
	rows, err := s.db.Query(
		`SELECT id, holder_name, pan, expiry, cvv, issuer_id, track, amount FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.HolderName, &c.PAN, &c.Expiry, &c.CVV, &c.IssuerID, &c.Track, &c.Amount); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// Get returns one card by id.
func (s *Store) Get(id int64) (Card, error) {
	var c Card
	err := s.db.QueryRow(
		`SELECT id, holder_name, pan, expiry, cvv, issuer_id, track, amount FROM cards WHERE id = ?`, id,
	).Scan(&c.ID, &c.HolderName, &c.PAN, &c.Expiry, &c.CVV, &c.IssuerID, &c.Track, &c.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	if err != nil {
		return Card{}, fmt.Errorf("query card %d: %w", id, err)
	}
	return c, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
