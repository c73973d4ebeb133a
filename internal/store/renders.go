package store

import (
	"context"
	"fmt"
	"time"
)

// Render outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeUserError     = "user_error"
	OutcomeInternalError = "internal_error"
)

// RenderRecord is one processed floor preview request. ArchiveDigest is the
// hex BLAKE2b-256 of the uploaded tileset archive, empty for built-ins.
type RenderRecord struct {
	ID            int64
	MessageID     uint64
	ChannelID     uint64
	AuthorID      uint64
	Seed          uint32
	TilesetID     int
	ArchiveDigest string
	Options       string
	Outcome       string
	ErrorTitle    string
	Duration      time.Duration
	CreatedAt     time.Time
}

// RecordRender appends r to the render log and returns its id.
func (s *Store) RecordRender(ctx context.Context, r RenderRecord) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	id, err := s.insert(ctx, `INSERT INTO render_log (message_id, channel_id, author_id, seed, tileset_id,
		archive_digest, options, outcome, error_title, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.MessageID), int64(r.ChannelID), int64(r.AuthorID), int64(r.Seed), r.TilesetID,
		r.ArchiveDigest, r.Options, r.Outcome, r.ErrorTitle, r.Duration.Milliseconds(), r.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to record render of message %d: %w", r.MessageID, err)
	}
	return id, nil
}

// RenderFilter selects a page of the render log, newest first. Zero fields
// do not filter. Before is an exclusive id cursor: pass the smallest id of
// the previous page to get the next one.
type RenderFilter struct {
	AuthorID uint64
	Outcome  string
	Before   int64
	Limit    int
}

const renderColumns = `id, message_id, channel_id, author_id, seed, tileset_id, archive_digest,
	options, outcome, error_title, duration_ms, created_at`

// RendersFor returns the log entries of a message, oldest first.
func (s *Store) RendersFor(ctx context.Context, messageID uint64) ([]RenderRecord, error) {
	q := selectFrom("render_log", renderColumns).
		where("message_id = ?", int64(messageID)).
		orderBy("id ASC")
	return s.renders(ctx, q)
}

// RecentRenders returns up to limit entries, newest first.
func (s *Store) RecentRenders(ctx context.Context, limit int) ([]RenderRecord, error) {
	return s.Renders(ctx, RenderFilter{Limit: limit})
}

// Renders returns one page of the render log.
func (s *Store) Renders(ctx context.Context, f RenderFilter) ([]RenderRecord, error) {
	q := selectFrom("render_log", renderColumns).orderBy("id DESC").limitTo(f.Limit)
	if f.AuthorID != 0 {
		q.where("author_id = ?", int64(f.AuthorID))
	}
	if f.Outcome != "" {
		q.where("outcome = ?", f.Outcome)
	}
	if f.Before > 0 {
		q.where("id < ?", f.Before)
	}
	return s.renders(ctx, q)
}

func (s *Store) renders(ctx context.Context, q *selectQuery) ([]RenderRecord, error) {
	rows, err := s.selectRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}
	defer rows.Close()

	var out []RenderRecord
	for rows.Next() {
		var r RenderRecord
		var msg, ch, author, seed, ms, created int64
		if err := rows.Scan(&r.ID, &msg, &ch, &author, &seed, &r.TilesetID, &r.ArchiveDigest,
			&r.Options, &r.Outcome, &r.ErrorTitle, &ms, &created); err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		r.MessageID, r.ChannelID, r.AuthorID = uint64(msg), uint64(ch), uint64(author)
		r.Seed = uint32(seed)
		r.Duration = time.Duration(ms) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
