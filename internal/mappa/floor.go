// Package mappa models a dungeon floor description: its generator settings
// and the four spawn tables that decide what populates it.
package mappa

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/skytemple/swablu/internal/weighted"
)

// Guaranteed is the item weight marking a once-per-floor placement.
const Guaranteed = 65535

const (
	// PokeCategory and PokeItem are the item fallbacks (money).
	PokeCategory = 6
	PokeItem     = 183
)

var (
	// ErrMalformed wraps XML that cannot be decoded at all.
	ErrMalformed = errors.New("malformed floor XML")
	// ErrInvalid wraps XML that decodes but describes an impossible floor.
	ErrInvalid = errors.New("invalid floor")
)

// Structure is the overall room arrangement of a floor.
type Structure int

const (
	StructureMediumLarge Structure = iota
	StructureSmall
	StructureSingleMonsterHouse
	StructureRing
	StructureCrossroads
	StructureTwoRoomsOneMonsterHouse
	StructureLine
	StructureCross
	StructureSmallMedium
	StructureBeetle
	StructureOuterRooms
	StructureMedium
)

var structureNames = []string{
	"MEDIUM_LARGE",
	"SMALL",
	"SINGLE_MONSTER_HOUSE",
	"RING",
	"CROSSROADS",
	"TWO_ROOMS_ONE_MONSTER_HOUSE",
	"LINE",
	"CROSS",
	"SMALL_MEDIUM",
	"BEETLE",
	"OUTER_ROOMS",
	"MEDIUM",
}

func (s Structure) String() string {
	if s >= 0 && int(s) < len(structureNames) {
		return structureNames[s]
	}
	return fmt.Sprintf("Structure(%d)", int(s))
}

// ParseStructure accepts a structure name or its numeric value.
func ParseStructure(s string) (Structure, error) {
	for i, name := range structureNames {
		if name == s {
			return Structure(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n >= 0 && n < len(structureNames) {
		return Structure(n), nil
	}
	return 0, fmt.Errorf("unknown structure %q", s)
}

// Layout holds the generator settings of a floor. Densities follow the
// game's own scales.
type Layout struct {
	Structure   Structure `validate:"min=0,max=11"`
	TilesetID   int       `validate:"min=0,max=199"`
	RoomDensity int       `validate:"min=0,max=36"`

	FloorConnectivity   int `validate:"min=0,max=100"`
	ExtraHallwayDensity int `validate:"min=0,max=100"`
	DeadEnds            bool

	InitialEnemyDensity int `validate:"min=0,max=40"`
	ItemDensity         int `validate:"min=0,max=40"`
	BuriedItemDensity   int `validate:"min=0,max=40"`
	TrapDensity         int `validate:"min=0,max=40"`

	KecleonShopChance  int `validate:"min=0,max=100"`
	MonsterHouseChance int `validate:"min=0,max=100"`
	// UnusedChance is the maze-room chance once UnusedDungeonChancePatch
	// is applied; without the patch the game ignores it.
	UnusedChance int `validate:"min=0,max=100"`

	HasSecondaryTerrain bool
	SecondaryDensity    int `validate:"min=0,max=40"`
	ImperfectRooms      bool
}

// MonsterSpawn is one monster table row. Weight is cumulative.
type MonsterSpawn struct {
	Species int `validate:"min=1,max=1154"`
	Level   int `validate:"min=1,max=100"`
	Weight  int `validate:"min=0,max=10000"`
}

// TrapSpawn is one trap table row. Weight is cumulative.
type TrapSpawn struct {
	Trap   int `validate:"min=0,max=24"`
	Weight int `validate:"min=0,max=10000"`
}

// CategorySpawn is one item category row. Weight is cumulative.
type CategorySpawn struct {
	Category int `validate:"min=0,max=15"`
	Weight   int `validate:"min=0,max=10000"`
}

// ItemSpawn is one item row. Weight is cumulative, or Guaranteed.
type ItemSpawn struct {
	Item   int `validate:"min=0,max=1399"`
	Weight int `validate:"min=0,max=65535"`
}

// ItemList pairs a category table with an item table.
type ItemList struct {
	Categories []CategorySpawn `validate:"dive"`
	Items      []ItemSpawn     `validate:"dive"`
}

// Floor is a complete floor description.
type Floor struct {
	Layout      Layout
	Monsters    []MonsterSpawn `validate:"dive"`
	Traps       []TrapSpawn    `validate:"dive"`
	FloorItems  ItemList
	BuriedItems ItemList
}

// MonsterTable returns the monster spawn table keyed by species.
func (f *Floor) MonsterTable() weighted.Table {
	t := make(weighted.Table, len(f.Monsters))
	for i, m := range f.Monsters {
		t[i] = weighted.Entry{ID: m.Species, Weight: m.Weight}
	}
	return t
}

// TrapTable returns the trap spawn table keyed by trap id.
func (f *Floor) TrapTable() weighted.Table {
	t := make(weighted.Table, len(f.Traps))
	for i, tr := range f.Traps {
		t[i] = weighted.Entry{ID: tr.Trap, Weight: tr.Weight}
	}
	return t
}

// CategoryTable returns the category table keyed by category id.
func (l ItemList) CategoryTable() weighted.Table {
	t := make(weighted.Table, len(l.Categories))
	for i, c := range l.Categories {
		t[i] = weighted.Entry{ID: c.Category, Weight: c.Weight}
	}
	return t
}

// ItemTable returns the item table keyed by item id.
func (l ItemList) ItemTable() weighted.Table {
	t := make(weighted.Table, len(l.Items))
	for i, it := range l.Items {
		t[i] = weighted.Entry{ID: it.Item, Weight: it.Weight}
	}
	return t
}

// Guaranteed returns the ids of guaranteed items in ascending order, so the
// queue a generator consumes is the same for every run.
func (l ItemList) Guaranteed() []int {
	ids := l.ItemTable().Marked(Guaranteed)
	sort.Ints(ids)
	return ids
}

var validate = validator.New()

// Validate checks field ranges and that every table is cumulative.
func (f *Floor) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s = %v fails %q", ErrInvalid, fe.Namespace(), fe.Value(), fe.Tag()+" "+fe.Param())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	tables := []struct {
		name  string
		table weighted.Table
	}{
		{"monster list", f.MonsterTable()},
		{"trap list", f.TrapTable()},
		{"floor item categories", f.FloorItems.CategoryTable()},
		{"floor items", f.FloorItems.ItemTable()},
		{"buried item categories", f.BuriedItems.CategoryTable()},
		{"buried items", f.BuriedItems.ItemTable()},
	}
	for _, tt := range tables {
		if err := tt.table.Validate(Guaranteed); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, tt.name, err)
		}
	}
	return nil
}
