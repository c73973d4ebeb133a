package store

import (
	"errors"
	"testing"
)

func TestNewDialect(t *testing.T) {
	if _, ok := NewDialect(DialectSQLite).(*SQLiteDialect); !ok {
		t.Error("expected *SQLiteDialect")
	}
	if _, ok := NewDialect(DialectPostgres).(*PostgresDialect); !ok {
		t.Error("expected *PostgresDialect")
	}
	if _, ok := NewDialect("unknown").(*SQLiteDialect); !ok {
		t.Error("unknown dialect should default to SQLite")
	}
}

func TestPlaceholders(t *testing.T) {
	sqlite, pg := &SQLiteDialect{}, &PostgresDialect{}
	tests := []struct {
		position int
		pg       string
	}{
		{1, "$1"},
		{2, "$2"},
		{10, "$10"},
	}
	for _, tt := range tests {
		if got := sqlite.Placeholder(tt.position); got != "?" {
			t.Errorf("SQLite Placeholder(%d) = %q", tt.position, got)
		}
		if got := pg.Placeholder(tt.position); got != tt.pg {
			t.Errorf("Postgres Placeholder(%d) = %q, want %q", tt.position, got, tt.pg)
		}
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		dialect Dialect
		err     error
		want    bool
	}{
		{&SQLiteDialect{}, nil, false},
		{&SQLiteDialect{}, errors.New("UNIQUE constraint failed: jam.jam_key"), true},
		{&SQLiteDialect{}, errors.New("no such table"), false},
		{&PostgresDialect{}, nil, false},
		{&PostgresDialect{}, errors.New(`pq: duplicate key value violates unique constraint "jam_jam_key_key"`), true},
		{&PostgresDialect{}, errors.New("ERROR 23505"), true},
		{&PostgresDialect{}, errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := tt.dialect.IsDuplicateKeyError(tt.err); got != tt.want {
			t.Errorf("%T.IsDuplicateKeyError(%v) = %v, want %v", tt.dialect, tt.err, got, tt.want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT points FROM rep WHERE discord_id = ? AND points > ?"
	if got := rebind(&SQLiteDialect{}, q); got != q {
		t.Errorf("SQLite rebind = %q", got)
	}
	want := "SELECT points FROM rep WHERE discord_id = $1 AND points > $2"
	if got := rebind(&PostgresDialect{}, q); got != want {
		t.Errorf("Postgres rebind = %q, want %q", got, want)
	}

	ins := "INSERT INTO jam (jam_key, config) VALUES (?, ?)"
	if got := returning(&SQLiteDialect{}, ins, "id"); got != ins {
		t.Errorf("SQLite returning = %q", got)
	}
	want = "INSERT INTO jam (jam_key, config) VALUES ($1, $2) RETURNING id"
	if got := returning(&PostgresDialect{}, ins, "id"); got != want {
		t.Errorf("Postgres returning = %q, want %q", got, want)
	}
}

func TestSelectQuery(t *testing.T) {
	tests := []struct {
		name  string
		query *selectQuery
		want  string
		args  int
	}{
		{
			name:  "plain",
			query: selectFrom("jam", "jam_key", "config").orderBy("id"),
			want:  "SELECT jam_key, config FROM jam ORDER BY id",
		},
		{
			name: "page",
			query: selectFrom("render_log", "id").
				where("author_id = ?", 1).where("id < ?", 40).
				orderBy("id DESC").limitTo(10),
			want: "SELECT id FROM render_log WHERE author_id = $1 AND id < $2 ORDER BY id DESC LIMIT 10",
			args: 2,
		},
		{
			name:  "in list",
			query: selectFrom("rom_hacks", "hack_key").whereIn("role_name", []string{"a", "b"}),
			want:  "SELECT hack_key FROM rom_hacks WHERE role_name IN ($1, $2)",
			args:  2,
		},
		{
			name:  "empty in list",
			query: selectFrom("rom_hacks", "hack_key").whereIn("role_name", nil),
			want:  "SELECT hack_key FROM rom_hacks WHERE 1 = 0",
		},
	}
	for _, tt := range tests {
		got, args := tt.query.build(&PostgresDialect{})
		if got != tt.want {
			t.Errorf("%s: build = %q, want %q", tt.name, got, tt.want)
		}
		if len(args) != tt.args {
			t.Errorf("%s: %d args, want %d", tt.name, len(args), tt.args)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "swablu", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=swablu sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
