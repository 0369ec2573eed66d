// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrStateNotFound = errors.New("client state not found")

// Keys of the persisted client state
const (
	StateLastKeyGenerated = "lastKeyGenerated"
	StateLastGeneratedKey = "lastGeneratedKey"
	StateAdminSession     = "adminSession"
)

type ClientStateStore struct {
	db *sql.DB
}

func NewClientStateStore(db *sql.DB) *ClientStateStore {
	return &ClientStateStore{
		db: db,
	}
}

func (s *ClientStateStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrStateNotFound
		}
		return "", err
	}

	return value, nil
}

func (s *ClientStateStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

func (s *ClientStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key)
	return err
}
