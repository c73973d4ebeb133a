package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultRep is the balance of a member without a rep row.
const DefaultRep = 3

// Rep is one leaderboard entry.
type Rep struct {
	DiscordID uint64
	Points    int
}

// Points returns the guild points of a member.
func (s *Store) Points(ctx context.Context, discordID uint64) (int, error) {
	var p int
	err := s.queryRow(ctx, `SELECT points FROM rep WHERE discord_id = ?`, int64(discordID)).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultRep, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read points of %d: %w", discordID, err)
	}
	return p, nil
}

// GivePoints adds amount (which may be negative) to a member's balance and
// returns the new balance.
func (s *Store) GivePoints(ctx context.Context, discordID uint64, amount int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p int
	err = tx.QueryRowContext(ctx, rebind(s.dialect, `SELECT points FROM rep WHERE discord_id = ?`), int64(discordID)).Scan(&p)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p = DefaultRep
	case err != nil:
		return 0, fmt.Errorf("failed to read points of %d: %w", discordID, err)
	}
	p += amount

	_, err = tx.ExecContext(ctx, rebind(s.dialect, `INSERT INTO rep (discord_id, points) VALUES (?, ?)
		ON CONFLICT (discord_id) DO UPDATE SET points = excluded.points`), int64(discordID), p)
	if err != nil {
		return 0, fmt.Errorf("failed to store points of %d: %w", discordID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit points of %d: %w", discordID, err)
	}
	return p, nil
}

// Leaderboard lists every member with a rep row, highest first.
func (s *Store) Leaderboard(ctx context.Context) ([]Rep, error) {
	rows, err := s.query(ctx, `SELECT discord_id, points FROM rep ORDER BY points DESC, discord_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rep: %w", err)
	}
	defer rows.Close()

	var out []Rep
	for rows.Next() {
		var id int64
		var r Rep
		if err := rows.Scan(&id, &r.Points); err != nil {
			return nil, fmt.Errorf("failed to scan rep: %w", err)
		}
		r.DiscordID = uint64(id)
		out = append(out, r)
	}
	return out, rows.Err()
}
