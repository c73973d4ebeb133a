// Package render rasterises a floor grid into a preview image.
package render

import (
	"fmt"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/tileset"
)

// Margin is the number of outside cells drawn around every side of a floor.
const Margin = 5

// Cell is one grid cell of a Floor. The set of implementations is closed:
// RuleCell, SpawnRuleCell and DirectCell.
type Cell interface {
	cell()
}

// RuleKind is a structural tile rule of a fixed floor.
type RuleKind uint8

const (
	RuleFloorRoom RuleKind = iota
	RuleFloorHallway
	RuleWall
	RuleSecondary
	RuleSecondaryHallwayVoidAll
	RuleFloorOrWall
	RuleKeyWall
	RuleWarpZone
)

func (k RuleKind) String() string {
	switch k {
	case RuleFloorRoom:
		return "floor-room"
	case RuleFloorHallway:
		return "floor-hallway"
	case RuleWall:
		return "wall"
	case RuleSecondary:
		return "secondary"
	case RuleSecondaryHallwayVoidAll:
		return "secondary-hallway-void-all"
	case RuleFloorOrWall:
		return "floor-or-wall"
	case RuleKeyWall:
		return "key-wall"
	case RuleWarpZone:
		return "warp-zone"
	}
	return fmt.Sprintf("rule(%d)", uint8(k))
}

// category maps a rule to its autotile terrain. Cells that may be either
// floor or wall are drawn as wall.
func (k RuleKind) category() (tileset.DMAType, error) {
	switch k {
	case RuleFloorRoom, RuleFloorHallway, RuleWarpZone:
		return tileset.DMAFloor, nil
	case RuleWall, RuleFloorOrWall, RuleKeyWall:
		return tileset.DMAWall, nil
	case RuleSecondary, RuleSecondaryHallwayVoidAll:
		return tileset.DMAWater, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidRule, k)
}

// SpawnKind marks a party member start position in a fixed floor.
type SpawnKind uint8

const (
	SpawnLeader SpawnKind = iota
	SpawnAttendant1
	SpawnAttendant2
	SpawnAttendant3
)

func (k SpawnKind) String() string {
	switch k {
	case SpawnLeader:
		return "leader"
	case SpawnAttendant1:
		return "attendant-1"
	case SpawnAttendant2:
		return "attendant-2"
	case SpawnAttendant3:
		return "attendant-3"
	}
	return fmt.Sprintf("spawn(%d)", uint8(k))
}

// RuleCell is a cell described only by its structural rule.
type RuleCell struct {
	Kind RuleKind
}

// SpawnRuleCell is a party spawn marker. Generated floors never contain
// them, so rendering one is an error.
type SpawnRuleCell struct {
	Spawn SpawnKind
}

// DirectCell is a generated tile with its resolved spawn id. Direction is
// the facing of a monster, 0 for the default.
type DirectCell struct {
	Tile      dungeon.ResolvedTile
	Direction int
}

func (RuleCell) cell()      {}
func (SpawnRuleCell) cell() {}
func (DirectCell) cell()    {}

// Floor is a row-major grid of cells.
type Floor struct {
	Width, Height int
	Cells         []Cell
}

// FromResolved wraps a generated floor.
func FromResolved(tiles []dungeon.ResolvedTile) Floor {
	cells := make([]Cell, len(tiles))
	for i, t := range tiles {
		cells[i] = DirectCell{Tile: t}
	}
	return Floor{Width: dungeon.Width, Height: dungeon.Height, Cells: cells}
}

func (f Floor) at(x, y int) Cell {
	return f.Cells[y*f.Width+x]
}

func (f Floor) check() error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Cells) != f.Width*f.Height {
		return fmt.Errorf("floor of %dx%d has %d cells", f.Width, f.Height, len(f.Cells))
	}
	return nil
}

// Outside returns the terrain drawn around the floor: water when any cell
// asks for the void to be secondary terrain, wall otherwise.
func (f Floor) Outside() tileset.DMAType {
	for _, c := range f.Cells {
		if r, ok := c.(RuleCell); ok && r.Kind == RuleSecondaryHallwayVoidAll {
			return tileset.DMAWater
		}
	}
	return tileset.DMAWall
}

// Grid is an autotile terrain grid, indexed [y][x].
type Grid [][]tileset.DMAType

// Categories returns the terrain grid of the floor including the outside
// margin.
func (f Floor) Categories() (Grid, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	outside := f.Outside()
	w, h := f.Width+2*Margin, f.Height+2*Margin
	g := make(Grid, h)
	for y := range g {
		g[y] = make([]tileset.DMAType, w)
		for x := range g[y] {
			g[y][x] = outside
		}
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			t, err := category(f.at(x, y))
			if err != nil {
				return nil, fmt.Errorf("cell %d,%d: %w", x, y, err)
			}
			g[y+Margin][x+Margin] = t
		}
	}
	return g, nil
}

func category(c Cell) (tileset.DMAType, error) {
	switch c := c.(type) {
	case RuleCell:
		return c.Kind.category()
	case SpawnRuleCell:
		return 0, fmt.Errorf("%w: %s spawn", ErrInvalidRule, c.Spawn)
	case DirectCell:
		switch c.Tile.Terrain {
		case dungeon.TerrainFloor:
			return tileset.DMAFloor, nil
		case dungeon.TerrainSecondary:
			return tileset.DMAWater, nil
		default:
			return tileset.DMAWall, nil
		}
	}
	return 0, fmt.Errorf("%w: %T", ErrInvalidRule, c)
}

// Mask returns the DMA neighbour mask of cell (x, y). Positions outside the
// grid count as wall.
func (g Grid) Mask(x, y int) uint8 {
	self := g[y][x]
	var m uint8
	for _, n := range neighbours {
		nx, ny := x+n.dx, y+n.dy
		same := self == tileset.DMAWall
		if ny >= 0 && ny < len(g) && nx >= 0 && nx < len(g[ny]) {
			same = g[ny][nx] == self
		}
		if same {
			m |= n.bit
		}
	}
	return m
}

var neighbours = []struct {
	dx, dy int
	bit    uint8
}{
	{0, 1, tileset.NeighbourS},
	{1, 1, tileset.NeighbourSE},
	{1, 0, tileset.NeighbourE},
	{1, -1, tileset.NeighbourNE},
	{0, -1, tileset.NeighbourN},
	{-1, -1, tileset.NeighbourNW},
	{-1, 0, tileset.NeighbourW},
	{-1, 1, tileset.NeighbourSW},
}
