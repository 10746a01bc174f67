// Package bookmarkstore persists stream bookmarks in a local sqlite
// database, so incremental runs work without an orchestrator passing a
// --state file around.
package bookmarkstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"tap-bigmarker/lib/singer"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return Store{}, fmt.Errorf("apply bookmark schema: %w", err)
	}
	return Store{db: db}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Load(ctx context.Context) (singer.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stream, value FROM bookmarks`)
	if err != nil {
		return singer.State{}, err
	}
	defer rows.Close()

	state := singer.NewState()
	for rows.Next() {
		var stream, value string
		if err := rows.Scan(&stream, &value); err != nil {
			return singer.State{}, err
		}
		var bookmark singer.Bookmark
		if err := json.Unmarshal([]byte(value), &bookmark); err != nil {
			return singer.State{}, fmt.Errorf("parse bookmark for %s: %w", stream, err)
		}
		state.Bookmarks[stream] = bookmark
	}
	return state, rows.Err()
}

func (s Store) Save(ctx context.Context, state singer.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for stream, bookmark := range state.Bookmarks {
		value, err := json.Marshal(bookmark)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO bookmarks (stream, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (stream) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			stream, string(value), now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
