package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RomHack is a listed ROM hack. Key is its short URL slug, RoleName the
// chat role of its community.
type RomHack struct {
	ID          int64
	Key         string
	Name        string
	Description string
	URLMain     string
	URLDiscord  string
	URLDownload string
	Video       string
	HackType    string
	RoleName    string
	MessageID   uint64
	UpdatedAt   time.Time
}

const hackColumns = `id, hack_key, name, description, url_main, url_discord, url_download,
	video, hack_type, role_name, message_id, updated_at`

// PutRomHack inserts h or updates the hack with the same key. It returns
// the row id.
func (s *Store) PutRomHack(ctx context.Context, h RomHack) (int64, error) {
	if strings.TrimSpace(h.Key) == "" || strings.TrimSpace(h.RoleName) == "" {
		return 0, errors.New("rom hack needs a key and a role name")
	}
	now := s.now().UnixMilli()

	res, err := s.exec(ctx, `UPDATE rom_hacks SET name = ?, description = ?, url_main = ?, url_discord = ?,
		url_download = ?, video = ?, hack_type = ?, role_name = ?, message_id = ?, updated_at = ?
		WHERE hack_key = ?`,
		h.Name, h.Description, h.URLMain, h.URLDiscord, h.URLDownload, h.Video, h.HackType,
		h.RoleName, int64(h.MessageID), now, h.Key)
	if err != nil {
		return 0, fmt.Errorf("failed to update rom hack %s: %w", h.Key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		var id int64
		if err := s.queryRow(ctx, `SELECT id FROM rom_hacks WHERE hack_key = ?`, h.Key).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to read rom hack id: %w", err)
		}
		return id, nil
	}

	id, err := s.insert(ctx, `INSERT INTO rom_hacks (hack_key, name, description, url_main, url_discord,
		url_download, video, hack_type, role_name, message_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Key, h.Name, h.Description, h.URLMain, h.URLDiscord, h.URLDownload, h.Video, h.HackType,
		h.RoleName, int64(h.MessageID), now)
	if err != nil {
		return 0, fmt.Errorf("failed to create rom hack %s: %w", h.Key, err)
	}
	return id, nil
}

// RomHack returns the hack with key.
func (s *Store) RomHack(ctx context.Context, key string) (*RomHack, error) {
	h, err := scanHack(s.queryRow(ctx, `SELECT `+hackColumns+` FROM rom_hacks WHERE hack_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rom hack %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rom hack %s: %w", key, err)
	}
	return h, nil
}

// RomHacks lists hacks, most recently updated first. A non-nil roles
// restricts the result to hacks of those roles; an empty one matches none.
func (s *Store) RomHacks(ctx context.Context, roles []string) ([]RomHack, error) {
	if roles != nil && len(roles) == 0 {
		return nil, nil
	}
	q := selectFrom("rom_hacks", hackColumns).orderBy("updated_at DESC, name ASC")
	if roles != nil {
		q.whereIn("role_name", roles)
	}

	rows, err := s.selectRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rom hacks: %w", err)
	}
	defer rows.Close()

	var out []RomHack
	for rows.Next() {
		h, err := scanHack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rom hack: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHack(row scanner) (*RomHack, error) {
	var h RomHack
	var msg, updated int64
	err := row.Scan(&h.ID, &h.Key, &h.Name, &h.Description, &h.URLMain, &h.URLDiscord, &h.URLDownload,
		&h.Video, &h.HackType, &h.RoleName, &msg, &updated)
	if err != nil {
		return nil, err
	}
	h.MessageID = uint64(msg)
	h.UpdatedAt = time.UnixMilli(updated)
	return &h, nil
}
