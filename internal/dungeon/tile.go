// Package dungeon builds the structure of a floor and fills it with
// concrete spawns.
package dungeon

// Width and Height are the fixed floor dimensions in tiles.
const (
	Width  = 56
	Height = 32
)

// Terrain is the base terrain of a tile.
type Terrain uint8

const (
	TerrainWall Terrain = iota
	TerrainSecondary
	TerrainFloor
)

func (t Terrain) String() string {
	switch t {
	case TerrainWall:
		return "wall"
	case TerrainSecondary:
		return "secondary"
	case TerrainFloor:
		return "floor"
	}
	return "unknown"
}

// Feature is what occupies a tile besides its terrain.
type Feature uint8

const (
	FeatureNone Feature = iota
	FeaturePlayerSpawn
	FeatureEnemy
	FeatureItem
	FeatureBuriedItem
	FeatureTrap
	FeatureStairs
)

func (f Feature) String() string {
	switch f {
	case FeatureNone:
		return "none"
	case FeaturePlayerSpawn:
		return "player-spawn"
	case FeatureEnemy:
		return "enemy"
	case FeatureItem:
		return "item"
	case FeatureBuriedItem:
		return "buried-item"
	case FeatureTrap:
		return "trap"
	case FeatureStairs:
		return "stairs"
	}
	return "unknown"
}

// RoomKind tags tiles that belong to a room.
type RoomKind uint8

const (
	RoomNone RoomKind = iota
	RoomNormal
	RoomKecleonShop
	RoomMonsterHouse
	RoomMaze
)

func (r RoomKind) String() string {
	switch r {
	case RoomNone:
		return "none"
	case RoomNormal:
		return "normal"
	case RoomKecleonShop:
		return "kecleon-shop"
	case RoomMonsterHouse:
		return "monster-house"
	case RoomMaze:
		return "maze"
	}
	return "unknown"
}

// Tile is one cell of a built floor, before spawns are resolved.
type Tile struct {
	Terrain Terrain
	Feature Feature
	Room    RoomKind
}

// ResolvedTile is a Tile with its spawn id filled in. ID is the species for
// player spawns and enemies, the item id for items and buried items and
// the trap id for traps. It is zero for every other feature.
type ResolvedTile struct {
	Tile
	ID int
}

// Index returns the row-major index of (x, y).
func Index(x, y int) int {
	return y*Width + x
}
