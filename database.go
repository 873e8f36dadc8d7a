package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	statusRendered = "rendered"
	statusFailed   = "failed"
)

// HistoryEntry records the outcome of one submission.
type HistoryEntry struct {
	ID              string    `json:"id"`
	CharacterName   string    `json:"characterName"`
	CharacterHealth string    `json:"characterHealth"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type HistoryStore struct {
	db *sql.DB
}

func initDB(filepath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filepath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; concurrent renders share this connection.
	db.SetMaxOpenConns(1)

	portraitsTable := `
	CREATE TABLE IF NOT EXISTS portraits (
		id TEXT PRIMARY KEY,
		character_name TEXT NOT NULL,
		character_health TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(portraitsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create portraits table: %w", err)
	}

	return db, nil
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Record(ctx context.Context, e HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO portraits (id, character_name, character_health, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.CharacterName, e.CharacterHealth, e.Status, e.Error, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert portrait %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, character_name, character_health, status, error, created_at FROM portraits ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query portraits: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.CharacterName, &e.CharacterHealth, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan portrait row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
