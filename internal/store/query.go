package store

import (
	"strconv"
	"strings"
)

// rebind rewrites ? placeholders into the dialect's form.
//
//	SQLite:   SELECT points FROM rep WHERE discord_id = ?
//	Postgres: SELECT points FROM rep WHERE discord_id = $1
func rebind(d Dialect, query string) string {
	if _, ok := d.(*SQLiteDialect); ok {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteString(d.Placeholder(n))
	}
	return b.String()
}

// returning appends the id clause on dialects that cannot report the last
// inserted id.
func returning(d Dialect, query, column string) string {
	q := rebind(d, query)
	if !d.SupportsLastInsertID() {
		q += d.ReturningClause(column)
	}
	return q
}

// selectQuery assembles a single-table SELECT. Conditions are ANDed and
// written with ? placeholders.
type selectQuery struct {
	table   string
	columns []string
	conds   []string
	args    []any
	order   string
	limit   int
}

func selectFrom(table string, columns ...string) *selectQuery {
	return &selectQuery{table: table, columns: columns}
}

func (q *selectQuery) where(cond string, args ...any) *selectQuery {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
	return q
}

// whereIn adds "column IN (...)". An empty list matches nothing.
func (q *selectQuery) whereIn(column string, values []string) *selectQuery {
	if len(values) == 0 {
		return q.where("1 = 0")
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return q.where(column+" IN ("+marks+")", args...)
}

func (q *selectQuery) orderBy(order string) *selectQuery {
	q.order = order
	return q
}

// limitTo caps the row count. Zero or less means no limit.
func (q *selectQuery) limitTo(n int) *selectQuery {
	q.limit = n
	return q
}

// build returns the query in d's placeholder form and its arguments.
func (q *selectQuery) build(d Dialect) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.table)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.order)
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return rebind(d, b.String()), q.args
}
