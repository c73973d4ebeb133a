// Package weighted resolves draws against cumulative spawn-weight tables.
//
// A table lists entries in document order; each weight is the running total
// up to and including that entry, on a scale of DrawRange. A draw selects
// the first entry whose weight is strictly greater than the draw. Entries
// with weight zero are never selected.
package weighted

import (
	"errors"
	"fmt"
	"math/rand"
)

// DrawRange is the exclusive upper bound of a draw.
const DrawRange = 10000

// ErrNotMonotonic is returned by Validate for a table whose weights decrease.
var ErrNotMonotonic = errors.New("cumulative weights must not decrease")

// Entry is one row of a spawn table.
type Entry struct {
	ID     int
	Weight int
}

// Table is an ordered cumulative-weight table.
type Table []Entry

// Filter reports whether an entry may be picked.
type Filter func(Entry) bool

// Draw returns a uniform integer in [0, DrawRange).
func Draw(rng *rand.Rand) int {
	return rng.Intn(DrawRange)
}

// Pick returns the id of the first entry whose weight exceeds draw, is
// non-zero and passes every filter. ok is false when nothing qualifies, in
// which case fallback is returned.
func (t Table) Pick(draw, fallback int, filters ...Filter) (id int, ok bool) {
next:
	for _, e := range t {
		if e.Weight == 0 || e.Weight <= draw {
			continue
		}
		for _, f := range filters {
			if !f(e) {
				continue next
			}
		}
		return e.ID, true
	}
	return fallback, false
}

// Resolve draws once from rng and picks from the table.
func (t Table) Resolve(rng *rand.Rand, fallback int, filters ...Filter) int {
	id, _ := t.Pick(Draw(rng), fallback, filters...)
	return id
}

// Excluding returns a filter rejecting entries carrying weight w.
func Excluding(w int) Filter {
	return func(e Entry) bool { return e.Weight != w }
}

// Validate checks that the weights are non-decreasing in table order. Zero
// weights and the given marker weights (e.g. a guaranteed-placement value)
// are not part of the running total and are skipped.
func (t Table) Validate(markers ...int) error {
	last := 0
	lastIdx := -1
outer:
	for i, e := range t {
		if e.Weight < 0 {
			return fmt.Errorf("entry %d (id %d): negative weight %d", i, e.ID, e.Weight)
		}
		if e.Weight == 0 {
			continue
		}
		for _, m := range markers {
			if e.Weight == m {
				continue outer
			}
		}
		if e.Weight < last {
			return fmt.Errorf("%w: entry %d (id %d) has %d after entry %d with %d",
				ErrNotMonotonic, i, e.ID, e.Weight, lastIdx, last)
		}
		last = e.Weight
		lastIdx = i
	}
	return nil
}

// Marked returns the ids of entries whose weight equals marker, in table
// order.
func (t Table) Marked(marker int) []int {
	var ids []int
	for _, e := range t {
		if e.Weight == marker {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
