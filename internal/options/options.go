// Package options parses the flag tokens of a floor render request.
package options

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Options controls which layers of a floor preview are drawn.
type Options struct {
	Seed uint32

	Stairs      bool
	Monsters    bool
	FloorItems  bool
	Traps       bool
	Kecleon     bool
	BuriedItems bool

	// Patches renders the floor as if UnusedDungeonChancePatch is applied.
	Patches bool

	// OnlyFloor records that +onlyfloor was present.
	OnlyFloor bool
}

// InvalidOptionError names a token that is not part of the option grammar.
type InvalidOptionError struct {
	Token string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("Unknown option: %s", e.Token)
}

// Default returns the options used when the message carries no tokens,
// with a random seed.
func Default() Options {
	return Options{
		Seed:       rand.Uint32(),
		Stairs:     true,
		Monsters:   true,
		FloorItems: true,
		Traps:      true,
		Kecleon:    true,
		Patches:    true,
	}
}

const seedPrefix = "+seed:"

// Parse reads the whitespace separated tokens of text. Every flag is a plain
// assignment, so token order never matters.
func Parse(text string) (Options, error) {
	opts := Default()

	for _, token := range strings.Fields(text) {
		switch token {
		case "+onlyfloor":
			opts.OnlyFloor = true
			opts.Stairs = false
			opts.Monsters = false
			opts.FloorItems = false
			opts.Traps = false
		case "+nostairs":
			opts.Stairs = false
		case "+nomonsters":
			opts.Monsters = false
		case "+noflooritems":
			opts.FloorItems = false
		case "+notraps":
			opts.Traps = false
		case "+nokecleon":
			opts.Kecleon = false
		case "+burieditems":
			opts.BuriedItems = true
		case "+nopatches":
			opts.Patches = false
		default:
			if !strings.HasPrefix(token, seedPrefix) {
				return Options{}, &InvalidOptionError{Token: token}
			}
			seed, err := strconv.ParseUint(token[len(seedPrefix):], 10, 32)
			if err != nil {
				return Options{}, &InvalidOptionError{Token: token}
			}
			opts.Seed = uint32(seed)
		}
	}

	return opts, nil
}

// Layers returns the enabled overlay names, for logging.
func (o Options) Layers() []string {
	var layers []string
	for _, l := range []struct {
		name string
		on   bool
	}{
		{"stairs", o.Stairs},
		{"monsters", o.Monsters},
		{"flooritems", o.FloorItems},
		{"traps", o.Traps},
		{"kecleon", o.Kecleon},
		{"burieditems", o.BuriedItems},
	} {
		if l.on {
			layers = append(layers, l.name)
		}
	}
	return layers
}
