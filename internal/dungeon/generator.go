package dungeon

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/weighted"
)

// MaxRetries is the number of structural attempts per floor.
const MaxRetries = 3

// Fixed ids used when resolving spawns.
const (
	PlayerSpecies   = 1
	FallbackSpecies = 383
	FallbackTrap    = 0
)

// ErrGenerationFailed is returned when every structural attempt failed.
var ErrGenerationFailed = errors.New("the floor generator failed to generate a floor from these settings")

// Generator turns a floor description into a resolved tile grid.
type Generator struct {
	Builder    Builder
	Catalog    *mappa.Catalog
	MaxRetries int

	// Patches applies UnusedDungeonChancePatch semantics: the layout's
	// unused chance becomes the maze room chance.
	Patches bool
}

// NewGenerator returns a Generator using RoomBuilder.
func NewGenerator(catalog *mappa.Catalog, patches bool) *Generator {
	return &Generator{
		Builder:    RoomBuilder{},
		Catalog:    catalog,
		MaxRetries: MaxRetries,
		Patches:    patches,
	}
}

// Generate builds the floor structure, retrying structural failures, then
// resolves every spawn in one row-major pass. All randomness comes from rng,
// so equal seeds give equal grids.
func (g *Generator) Generate(ctx context.Context, floor *mappa.Floor, rng *rand.Rand) ([]ResolvedTile, error) {
	layout := floor.Layout
	if !g.Patches {
		layout.UnusedChance = 0
	}

	var tiles []Tile
	var lastErr error
	for attempt := 0; attempt < g.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := g.Builder.Build(layout, rng)
		if err != nil {
			lastErr = err
			continue
		}
		if len(t) != Width*Height {
			lastErr = fmt.Errorf("%w: builder returned %d tiles", ErrStructure, len(t))
			continue
		}
		tiles = t
		break
	}
	if tiles == nil {
		if lastErr == nil {
			lastErr = ErrStructure
		}
		return nil, fmt.Errorf("%w: failed after %d attempts: %v", ErrGenerationFailed, g.MaxRetries, lastErr)
	}

	return g.resolve(floor, tiles, rng), nil
}

func (g *Generator) resolve(floor *mappa.Floor, tiles []Tile, rng *rand.Rand) []ResolvedTile {
	monsters := floor.MonsterTable()
	traps := floor.TrapTable()
	openFloor := floor.FloorItems.Guaranteed()
	openBuried := floor.BuriedItems.Guaranteed()

	out := make([]ResolvedTile, len(tiles))
	for i, t := range tiles {
		r := ResolvedTile{Tile: t}
		switch t.Feature {
		case FeaturePlayerSpawn:
			r.ID = PlayerSpecies
		case FeatureEnemy:
			r.ID = monsters.Resolve(rng, FallbackSpecies)
		case FeatureItem:
			r.ID, openFloor = g.resolveItem(floor.FloorItems, openFloor, rng)
		case FeatureBuriedItem:
			r.ID, openBuried = g.resolveItem(floor.BuriedItems, openBuried, rng)
		case FeatureTrap:
			r.ID = traps.Resolve(rng, FallbackTrap)
		}
		out[i] = r
	}
	return out
}

// resolveItem consumes the next guaranteed item if one is still open.
// Otherwise it draws a category and then an item of that category.
func (g *Generator) resolveItem(list mappa.ItemList, open []int, rng *rand.Rand) (int, []int) {
	if len(open) > 0 {
		return open[0], open[1:]
	}

	catDraw := weighted.Draw(rng)
	itemDraw := weighted.Draw(rng)

	category, _ := list.CategoryTable().Pick(catDraw, mappa.PokeCategory)
	item, _ := list.ItemTable().Pick(itemDraw, mappa.PokeItem,
		weighted.Excluding(mappa.Guaranteed),
		func(e weighted.Entry) bool { return g.Catalog.Contains(category, e.ID) },
	)
	return item, open
}
