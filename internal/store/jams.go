package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrJamExists is returned when creating a jam whose key is taken.
var ErrJamExists = errors.New("jam already exists")

// Jam is a hacking jam. Config is an opaque JSON document.
type Jam struct {
	Key    string
	Config json.RawMessage
}

// CreateJam stores a new jam.
func (s *Store) CreateJam(ctx context.Context, key string, config json.RawMessage) error {
	if !json.Valid(config) {
		return fmt.Errorf("jam %s: config is not valid JSON", key)
	}
	_, err := s.insert(ctx, `INSERT INTO jam (jam_key, config) VALUES (?, ?)`, key, string(config))
	if s.dialect.IsDuplicateKeyError(err) {
		return fmt.Errorf("jam %s: %w", key, ErrJamExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create jam %s: %w", key, err)
	}
	return nil
}

// UpdateJam replaces the config of an existing jam.
func (s *Store) UpdateJam(ctx context.Context, key string, config json.RawMessage) error {
	if !json.Valid(config) {
		return fmt.Errorf("jam %s: config is not valid JSON", key)
	}
	res, err := s.exec(ctx, `UPDATE jam SET config = ? WHERE jam_key = ?`, string(config), key)
	if err != nil {
		return fmt.Errorf("failed to update jam %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jam %s: %w", key, ErrNotFound)
	}
	return nil
}

// Jam returns one jam.
func (s *Store) Jam(ctx context.Context, key string) (*Jam, error) {
	var config string
	err := s.queryRow(ctx, `SELECT config FROM jam WHERE jam_key = ?`, key).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("jam %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jam %s: %w", key, err)
	}
	return &Jam{Key: key, Config: json.RawMessage(config)}, nil
}

// Jams lists all jams in creation order.
func (s *Store) Jams(ctx context.Context) ([]Jam, error) {
	rows, err := s.query(ctx, `SELECT jam_key, config FROM jam ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jams: %w", err)
	}
	defer rows.Close()

	var out []Jam
	for rows.Next() {
		var j Jam
		var config string
		if err := rows.Scan(&j.Key, &config); err != nil {
			return nil, fmt.Errorf("failed to scan jam: %w", err)
		}
		j.Config = json.RawMessage(config)
		out = append(out, j)
	}
	return out, rows.Err()
}

// Vote records a member's vote in a jam, replacing an earlier one.
func (s *Store) Vote(ctx context.Context, jam string, userID uint64, hack string) error {
	_, err := s.exec(ctx, `INSERT INTO jam_votes (user_id, jam, hack) VALUES (?, ?, ?)
		ON CONFLICT (user_id, jam) DO UPDATE SET hack = excluded.hack`, int64(userID), jam, hack)
	if err != nil {
		return fmt.Errorf("failed to vote in jam %s: %w", jam, err)
	}
	return nil
}

// Tally counts the votes per hack of a jam.
func (s *Store) Tally(ctx context.Context, jam string) (map[string]int, error) {
	rows, err := s.query(ctx, `SELECT hack, COUNT(*) FROM jam_votes WHERE jam = ? GROUP BY hack`, jam)
	if err != nil {
		return nil, fmt.Errorf("failed to tally jam %s: %w", jam, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var hack string
		var n int
		if err := rows.Scan(&hack, &n); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		out[hack] = n
	}
	return out, rows.Err()
}
