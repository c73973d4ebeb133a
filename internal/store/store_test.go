package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "nested", "test.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock makes s report successive minutes starting at 2024-01-01.
func fixedClock(s *Store) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestOpenCreatesTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "test.db")
	s, err := Open(Config{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	for _, table := range []string{"rom_hacks", "rep", "jam", "jam_votes", "render_log"} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := Open(Config{Driver: "sqlite", SQLitePath: path})
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		s.Close()
	}
}

func TestRomHacks(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s)
	ctx := context.Background()

	id, err := s.PutRomHack(ctx, RomHack{Key: "rtdx", Name: "Rescue Team", RoleName: "rt"})
	if err != nil {
		t.Fatalf("PutRomHack failed: %v", err)
	}
	if _, err := s.PutRomHack(ctx, RomHack{Key: "eos", Name: "Explorers", RoleName: "eos", MessageID: 1 << 60}); err != nil {
		t.Fatalf("PutRomHack failed: %v", err)
	}

	again, err := s.PutRomHack(ctx, RomHack{Key: "rtdx", Name: "Rescue Team DX", RoleName: "rt", Video: "v"})
	if err != nil {
		t.Fatalf("PutRomHack update failed: %v", err)
	}
	if again != id {
		t.Errorf("update returned id %d, want %d", again, id)
	}

	h, err := s.RomHack(ctx, "rtdx")
	if err != nil {
		t.Fatalf("RomHack failed: %v", err)
	}
	if h.Name != "Rescue Team DX" || h.Video != "v" {
		t.Errorf("RomHack = %+v", h)
	}

	all, err := s.RomHacks(ctx, nil)
	if err != nil {
		t.Fatalf("RomHacks failed: %v", err)
	}
	if len(all) != 2 || all[0].Key != "rtdx" || all[1].Key != "eos" {
		t.Errorf("RomHacks order = %+v, want rtdx (updated last) first", all)
	}
	if all[1].MessageID != 1<<60 {
		t.Errorf("MessageID = %d, want %d", all[1].MessageID, uint64(1<<60))
	}

	filtered, err := s.RomHacks(ctx, []string{"eos", "other"})
	if err != nil {
		t.Fatalf("RomHacks filtered failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Key != "eos" {
		t.Errorf("filtered = %+v", filtered)
	}

	none, err := s.RomHacks(ctx, []string{})
	if err != nil || len(none) != 0 {
		t.Errorf("RomHacks with empty filter = %v, %v", none, err)
	}

	if _, err := s.RomHack(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PutRomHack(ctx, RomHack{Key: " ", RoleName: "x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestRep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.Points(ctx, 42)
	if err != nil {
		t.Fatalf("Points failed: %v", err)
	}
	if p != DefaultRep {
		t.Errorf("Points of new member = %d, want %d", p, DefaultRep)
	}

	if p, err = s.GivePoints(ctx, 42, 2); err != nil || p != DefaultRep+2 {
		t.Errorf("GivePoints = %d, %v, want %d", p, err, DefaultRep+2)
	}
	if p, err = s.GivePoints(ctx, 42, -1); err != nil || p != DefaultRep+1 {
		t.Errorf("GivePoints = %d, %v, want %d", p, err, DefaultRep+1)
	}
	if _, err = s.GivePoints(ctx, 7, 10); err != nil {
		t.Fatal(err)
	}

	board, err := s.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	want := []Rep{{DiscordID: 7, Points: 13}, {DiscordID: 42, Points: 4}}
	if len(board) != len(want) || board[0] != want[0] || board[1] != want[1] {
		t.Errorf("Leaderboard = %+v, want %+v", board, want)
	}
}

func TestJams(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateJam(ctx, "spring", json.RawMessage(`{"title":"Spring"}`)); err != nil {
		t.Fatalf("CreateJam failed: %v", err)
	}
	if err := s.CreateJam(ctx, "spring", json.RawMessage(`{}`)); !errors.Is(err, ErrJamExists) {
		t.Errorf("expected ErrJamExists, got %v", err)
	}
	if err := s.CreateJam(ctx, "bad", json.RawMessage(`{`)); err == nil {
		t.Error("expected invalid JSON error")
	}
	if err := s.UpdateJam(ctx, "spring", json.RawMessage(`{"title":"Spring 2"}`)); err != nil {
		t.Fatalf("UpdateJam failed: %v", err)
	}
	if err := s.UpdateJam(ctx, "winter", json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	j, err := s.Jam(ctx, "spring")
	if err != nil {
		t.Fatalf("Jam failed: %v", err)
	}
	if string(j.Config) != `{"title":"Spring 2"}` {
		t.Errorf("Config = %s", j.Config)
	}
	if _, err := s.Jam(ctx, "winter"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	jams, err := s.Jams(ctx)
	if err != nil || len(jams) != 1 {
		t.Fatalf("Jams = %v, %v", jams, err)
	}

	for _, v := range []struct {
		user uint64
		hack string
	}{{1, "a"}, {2, "a"}, {3, "b"}, {1, "b"}} {
		if err := s.Vote(ctx, "spring", v.user, v.hack); err != nil {
			t.Fatalf("Vote failed: %v", err)
		}
	}
	tally, err := s.Tally(ctx, "spring")
	if err != nil {
		t.Fatalf("Tally failed: %v", err)
	}
	if tally["a"] != 1 || tally["b"] != 2 {
		t.Errorf("Tally = %v, want a:1 b:2", tally)
	}
}

func TestRenderLog(t *testing.T) {
	s := openTestStore(t)
	fixedClock(s)
	ctx := context.Background()

	first := RenderRecord{
		MessageID: 100, ChannelID: 5, AuthorID: 9, Seed: 4294967295, TilesetID: 3,
		Options: "+seed:4294967295", Outcome: OutcomeOK, Duration: 1500 * time.Millisecond,
	}
	if _, err := s.RecordRender(ctx, first); err != nil {
		t.Fatalf("RecordRender failed: %v", err)
	}
	if _, err := s.RecordRender(ctx, RenderRecord{
		MessageID: 100, Outcome: OutcomeUserError, ErrorTitle: "XML Error", ArchiveDigest: "abcd",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordRender(ctx, RenderRecord{MessageID: 200, Outcome: OutcomeInternalError}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RendersFor(ctx, 100)
	if err != nil {
		t.Fatalf("RendersFor failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RendersFor returned %d records, want 2", len(got))
	}
	r := got[0]
	if r.Seed != first.Seed || r.TilesetID != 3 || r.Duration != first.Duration || r.AuthorID != 9 {
		t.Errorf("record = %+v", r)
	}
	if !r.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", r.CreatedAt)
	}
	if got[1].ErrorTitle != "XML Error" || got[1].ArchiveDigest != "abcd" {
		t.Errorf("second record = %+v", got[1])
	}

	recent, err := s.RecentRenders(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRenders failed: %v", err)
	}
	if len(recent) != 2 || recent[0].MessageID != 200 {
		t.Errorf("RecentRenders = %+v", recent)
	}
}

func TestRenderPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		outcome := OutcomeOK
		if i%2 == 0 {
			outcome = OutcomeUserError
		}
		author := uint64(1)
		if i == 5 {
			author = 2
		}
		if _, err := s.RecordRender(ctx, RenderRecord{MessageID: uint64(i), AuthorID: author, Outcome: outcome}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.Renders(ctx, RenderFilter{AuthorID: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Renders failed: %v", err)
	}
	if len(page) != 2 || page[0].MessageID != 4 || page[1].MessageID != 3 {
		t.Fatalf("first page = %+v", page)
	}
	next, err := s.Renders(ctx, RenderFilter{AuthorID: 1, Limit: 2, Before: page[1].ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(next) != 2 || next[0].MessageID != 2 || next[1].MessageID != 1 {
		t.Errorf("second page = %+v", next)
	}

	failed, err := s.Renders(ctx, RenderFilter{Outcome: OutcomeUserError})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 || failed[0].MessageID != 4 {
		t.Errorf("user errors = %+v", failed)
	}
}
