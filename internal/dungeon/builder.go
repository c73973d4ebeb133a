package dungeon

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/skytemple/swablu/internal/mappa"
)

// ErrStructure is returned by a Builder when an attempt produced an
// unusable floor. The generator retries on it.
var ErrStructure = errors.New("structural generation failed")

// Builder lays out rooms, hallways and spawn positions for a floor.
// Implementations return Width*Height tiles in row-major order.
type Builder interface {
	Build(layout mappa.Layout, rng *rand.Rand) ([]Tile, error)
}

// rect is an inclusive rectangle of tiles.
type rect struct {
	X1, Y1, X2, Y2 int
}

func (r rect) w() int { return r.X2 - r.X1 + 1 }
func (r rect) h() int { return r.Y2 - r.Y1 + 1 }

func (r rect) center() (int, int) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

func (r rect) contains(x, y int) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// cell is one slot of the structure grid. Active cells hold either a room
// or a hallway junction.
type cell struct {
	active bool
	room   *room
	ax, ay int // corridor anchor
}

type room struct {
	bounds rect
	kind   RoomKind
}

// shape describes the structure grid of one Structure.
type shape struct {
	cols, rows int
	mask       func(c, r, cols, rows int) bool
	// forceMonsterHouse makes one room a monster house regardless of chance.
	forceMonsterHouse bool
	// oneRoom merges the grid into a single room.
	oneRoom bool
}

func all(c, r, cols, rows int) bool { return true }

func perimeter(c, r, cols, rows int) bool {
	return c == 0 || r == 0 || c == cols-1 || r == rows-1
}

func plus(c, r, cols, rows int) bool {
	return c == cols/2 || r == rows/2
}

func noCorners(c, r, cols, rows int) bool {
	return !((c == 0 || c == cols-1) && (r == 0 || r == rows-1))
}

var shapes = map[mappa.Structure]shape{
	mappa.StructureMediumLarge:             {cols: 4, rows: 3, mask: all},
	mappa.StructureSmall:                   {cols: 2, rows: 2, mask: all},
	mappa.StructureSingleMonsterHouse:      {cols: 1, rows: 1, mask: all, oneRoom: true, forceMonsterHouse: true},
	mappa.StructureRing:                    {cols: 4, rows: 3, mask: perimeter},
	mappa.StructureCrossroads:              {cols: 4, rows: 3, mask: noCorners},
	mappa.StructureTwoRoomsOneMonsterHouse: {cols: 2, rows: 1, mask: all, forceMonsterHouse: true},
	mappa.StructureLine:                    {cols: 5, rows: 1, mask: all},
	mappa.StructureCross:                   {cols: 3, rows: 3, mask: plus},
	mappa.StructureSmallMedium:             {cols: 3, rows: 2, mask: all},
	mappa.StructureBeetle:                  {cols: 3, rows: 3, mask: noCorners},
	mappa.StructureOuterRooms:              {cols: 4, rows: 3, mask: perimeter},
	mappa.StructureMedium:                  {cols: 3, rows: 3, mask: all},
}

// RoomBuilder is the default Builder. It splits the floor into a grid of
// cells, carves one room or junction per cell, joins neighbouring cells with
// corridors and then places terrain variants, special rooms and spawns.
type RoomBuilder struct{}

// Build implements Builder.
func (RoomBuilder) Build(layout mappa.Layout, rng *rand.Rand) ([]Tile, error) {
	sh, ok := shapes[layout.Structure]
	if !ok {
		return nil, fmt.Errorf("unsupported structure %s", layout.Structure)
	}

	b := &build{
		layout: layout,
		rng:    rng,
		tiles:  make([]Tile, Width*Height),
		shape:  sh,
	}
	b.layoutCells()
	if len(b.rooms) < 1 || (len(b.rooms) < 2 && !sh.oneRoom) {
		return nil, fmt.Errorf("%w: only %d rooms", ErrStructure, len(b.rooms))
	}
	b.carveRooms()
	b.connect()
	b.extraHallways()
	b.specialRooms()
	b.secondaryTerrain()
	if err := b.placeSpawns(); err != nil {
		return nil, err
	}
	if !b.connected() {
		return nil, fmt.Errorf("%w: floor is not connected", ErrStructure)
	}
	return b.tiles, nil
}

type build struct {
	layout mappa.Layout
	rng    *rand.Rand
	tiles  []Tile
	shape  shape
	grid   [][]*cell
	rooms  []*room
}

func (b *build) at(x, y int) *Tile {
	return &b.tiles[Index(x, y)]
}

func inInterior(x, y int) bool {
	return x >= 1 && y >= 1 && x < Width-1 && y < Height-1
}

func (b *build) layoutCells() {
	cols, rows := b.shape.cols, b.shape.rows
	cw := (Width - 2) / cols
	ch := (Height - 2) / rows

	var active []*cell
	b.grid = make([][]*cell, rows)
	for r := 0; r < rows; r++ {
		b.grid[r] = make([]*cell, cols)
		for c := 0; c < cols; c++ {
			cl := &cell{active: b.shape.mask(c, r, cols, rows)}
			b.grid[r][c] = cl
			if cl.active {
				active = append(active, cl)
			}
		}
	}

	if b.shape.oneRoom {
		rm := &room{bounds: rect{X1: 3, Y1: 3, X2: Width - 4, Y2: Height - 4}, kind: RoomNormal}
		b.rooms = append(b.rooms, rm)
		cl := b.grid[0][0]
		cl.room = rm
		cl.ax, cl.ay = rm.bounds.center()
		return
	}

	// Pick which active cells hold rooms; the rest become junctions.
	want := b.layout.RoomDensity + b.rng.Intn(3)
	if want < 2 {
		want = 2
	}
	if want > len(active) {
		want = len(active)
	}
	order := b.rng.Perm(len(active))
	isRoom := make(map[*cell]bool, want)
	for _, i := range order[:want] {
		isRoom[active[i]] = true
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cl := b.grid[r][c]
			if !cl.active {
				continue
			}
			area := rect{X1: 1 + c*cw, Y1: 1 + r*ch, X2: c*cw + cw, Y2: r*ch + ch}
			if isRoom[cl] {
				rm := b.roomIn(area)
				cl.room = rm
				cl.ax, cl.ay = rm.bounds.center()
				b.rooms = append(b.rooms, rm)
			} else {
				cl.ax = area.X1 + 2 + b.rng.Intn(max(1, area.w()-4))
				cl.ay = area.Y1 + 2 + b.rng.Intn(max(1, area.h()-4))
			}
		}
	}
}

// roomIn picks a random room inside area, leaving a one tile margin so
// rooms in neighbouring cells never touch.
func (b *build) roomIn(area rect) *room {
	maxW := area.w() - 2
	maxH := area.h() - 2
	w := min(maxW, 4+b.rng.Intn(max(1, maxW-3)))
	h := min(maxH, 3+b.rng.Intn(max(1, maxH-2)))
	x := area.X1 + 1 + b.rng.Intn(max(1, maxW-w+1))
	y := area.Y1 + 1 + b.rng.Intn(max(1, maxH-h+1))
	return &room{bounds: rect{X1: x, Y1: y, X2: x + w - 1, Y2: y + h - 1}, kind: RoomNormal}
}

func (b *build) carveRooms() {
	for _, rm := range b.rooms {
		r := rm.bounds
		for y := r.Y1; y <= r.Y2; y++ {
			for x := r.X1; x <= r.X2; x++ {
				t := b.at(x, y)
				t.Terrain = TerrainFloor
				t.Room = RoomNormal
			}
		}
		if b.layout.ImperfectRooms && r.w() > 4 && r.h() > 4 {
			for _, corner := range [][2]int{{r.X1, r.Y1}, {r.X2, r.Y1}, {r.X1, r.Y2}, {r.X2, r.Y2}} {
				if b.rng.Intn(2) == 0 {
					t := b.at(corner[0], corner[1])
					t.Terrain = TerrainWall
					t.Room = RoomNone
				}
			}
		}
	}
}

type link struct {
	a, b *cell
}

// connect joins all active cells with a random spanning tree, then adds
// extra links between neighbours with FloorConnectivity percent chance.
func (b *build) connect() {
	rows, cols := len(b.grid), len(b.grid[0])
	var links []link
	degree := make(map[*cell]int)
	linked := make(map[[2]*cell]bool)
	add := func(x, y *cell) {
		if linked[[2]*cell{x, y}] || linked[[2]*cell{y, x}] {
			return
		}
		linked[[2]*cell{x, y}] = true
		links = append(links, link{x, y})
		degree[x]++
		degree[y]++
	}

	neighbours := func(r, c int) [][2]int {
		var out [][2]int
		for _, d := range [][2]int{{0, 1}, {1, 0}, {0, -1}, {-1, 0}} {
			nr, nc := r+d[0], c+d[1]
			if nr >= 0 && nc >= 0 && nr < rows && nc < cols && b.grid[nr][nc].active {
				out = append(out, [2]int{nr, nc})
			}
		}
		return out
	}

	// Randomised depth-first spanning tree.
	var start [2]int
	found := false
	for r := 0; r < rows && !found; r++ {
		for c := 0; c < cols && !found; c++ {
			if b.grid[r][c].active {
				start, found = [2]int{r, c}, true
			}
		}
	}
	visited := map[[2]int]bool{start: true}
	stack := [][2]int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		var open [][2]int
		for _, n := range neighbours(cur[0], cur[1]) {
			if !visited[n] {
				open = append(open, n)
			}
		}
		if len(open) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		next := open[b.rng.Intn(len(open))]
		visited[next] = true
		add(b.grid[cur[0]][cur[1]], b.grid[next[0]][next[1]])
		stack = append(stack, next)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !b.grid[r][c].active {
				continue
			}
			for _, n := range neighbours(r, c) {
				if b.rng.Intn(100) < b.layout.FloorConnectivity {
					add(b.grid[r][c], b.grid[n[0]][n[1]])
				}
			}
		}
	}

	// Without dead ends every junction needs a way through.
	if !b.layout.DeadEnds {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				cl := b.grid[r][c]
				if !cl.active || cl.room != nil || degree[cl] != 1 {
					continue
				}
				for _, n := range neighbours(r, c) {
					other := b.grid[n[0]][n[1]]
					if !linked[[2]*cell{cl, other}] && !linked[[2]*cell{other, cl}] {
						add(cl, other)
						break
					}
				}
			}
		}
	}

	for _, l := range links {
		b.carveCorridor(l.a.ax, l.a.ay, l.b.ax, l.b.ay)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if cl := b.grid[r][c]; cl.active && cl.room == nil {
				b.at(cl.ax, cl.ay).Terrain = TerrainFloor
			}
		}
	}
}

// carveCorridor digs an L-shaped hallway between two points.
func (b *build) carveCorridor(x1, y1, x2, y2 int) {
	if b.rng.Intn(2) == 0 {
		b.carveH(x1, x2, y1)
		b.carveV(y1, y2, x2)
	} else {
		b.carveV(y1, y2, x1)
		b.carveH(x1, x2, y2)
	}
}

func (b *build) carveH(x1, x2, y int) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x++ {
		if inInterior(x, y) {
			b.at(x, y).Terrain = TerrainFloor
		}
	}
}

func (b *build) carveV(y1, y2, x int) {
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	for y := y1; y <= y2; y++ {
		if inInterior(x, y) {
			b.at(x, y).Terrain = TerrainFloor
		}
	}
}

// extraHallways adds short dead-end hallways branching off existing
// hallways.
func (b *build) extraHallways() {
	dirs := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for i := 0; i < b.layout.ExtraHallwayDensity; i++ {
		x, y, ok := b.randomTile(func(t *Tile) bool { return t.Terrain == TerrainFloor && t.Room == RoomNone })
		if !ok {
			return
		}
		d := dirs[b.rng.Intn(len(dirs))]
		for step := 0; step < 3+b.rng.Intn(5); step++ {
			nx, ny := x+d[0], y+d[1]
			if !inInterior(nx, ny) || b.at(nx, ny).Room != RoomNone {
				break
			}
			x, y = nx, ny
			b.at(x, y).Terrain = TerrainFloor
		}
	}
}

func (b *build) specialRooms() {
	candidates := func(filter func(*room) bool) []*room {
		var out []*room
		for _, rm := range b.rooms {
			if rm.kind == RoomNormal && filter(rm) {
				out = append(out, rm)
			}
		}
		return out
	}
	anyRoom := func(*room) bool { return true }

	if b.layout.UnusedChance > 0 && b.rng.Intn(100) < b.layout.UnusedChance {
		big := candidates(func(rm *room) bool { return rm.bounds.w() >= 7 && rm.bounds.h() >= 7 })
		if len(big) > 0 {
			b.carveMaze(big[b.rng.Intn(len(big))])
		}
	}

	if b.shape.forceMonsterHouse || (b.layout.MonsterHouseChance > 0 && b.rng.Intn(100) < b.layout.MonsterHouseChance) {
		if rs := candidates(anyRoom); len(rs) > 0 {
			b.markRoom(rs[b.rng.Intn(len(rs))], RoomMonsterHouse)
		}
	}

	if b.layout.KecleonShopChance > 0 && b.rng.Intn(100) < b.layout.KecleonShopChance {
		rs := candidates(func(rm *room) bool { return rm.bounds.w() >= 5 && rm.bounds.h() >= 4 })
		if len(rs) > 0 {
			rm := rs[b.rng.Intn(len(rs))]
			rm.kind = RoomKecleonShop
			// The shop floor keeps a one tile walkway around it.
			r := rm.bounds
			for y := r.Y1 + 1; y < r.Y2; y++ {
				for x := r.X1 + 1; x < r.X2; x++ {
					if t := b.at(x, y); t.Terrain == TerrainFloor {
						t.Room = RoomKecleonShop
					}
				}
			}
		}
	}
}

func (b *build) markRoom(rm *room, kind RoomKind) {
	rm.kind = kind
	r := rm.bounds
	for y := r.Y1; y <= r.Y2; y++ {
		for x := r.X1; x <= r.X2; x++ {
			if t := b.at(x, y); t.Room != RoomNone {
				t.Room = kind
			}
		}
	}
}

// carveMaze fills the inside of a room with a maze. The outermost ring of
// the room stays open so every hallway entering the room reaches the maze.
func (b *build) carveMaze(rm *room) {
	b.markRoom(rm, RoomMaze)
	r := rm.bounds
	inner := rect{X1: r.X1 + 1, Y1: r.Y1 + 1, X2: r.X2 - 1, Y2: r.Y2 - 1}
	for y := inner.Y1; y <= inner.Y2; y++ {
		for x := inner.X1; x <= inner.X2; x++ {
			b.at(x, y).Terrain = TerrainWall
		}
	}

	// Passage nodes sit on odd offsets from the room origin.
	type node struct{ x, y int }
	isNode := func(n node) bool {
		return inner.contains(n.x, n.y) && (n.x-r.X1)%2 == 1 && (n.y-r.Y1)%2 == 1
	}
	start := node{inner.X1, inner.Y1}
	b.at(start.x, start.y).Terrain = TerrainFloor
	visited := map[node]bool{start: true}
	stack := []node{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		var open []node
		for _, d := range [][2]int{{2, 0}, {-2, 0}, {0, 2}, {0, -2}} {
			n := node{cur.x + d[0], cur.y + d[1]}
			if isNode(n) && !visited[n] {
				open = append(open, n)
			}
		}
		if len(open) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		next := open[b.rng.Intn(len(open))]
		visited[next] = true
		b.at((cur.x+next.x)/2, (cur.y+next.y)/2).Terrain = TerrainFloor
		b.at(next.x, next.y).Terrain = TerrainFloor
		stack = append(stack, next)
	}
}

// secondaryTerrain turns winding strips of wall into secondary terrain.
// Only walls change, so walkable connectivity is preserved.
func (b *build) secondaryTerrain() {
	if !b.layout.HasSecondaryTerrain {
		return
	}
	for i := 0; i < b.layout.SecondaryDensity; i++ {
		x, y, ok := b.randomTile(func(t *Tile) bool { return t.Terrain == TerrainWall })
		if !ok {
			return
		}
		for step := 0; step < 12+b.rng.Intn(12); step++ {
			if t := b.at(x, y); t.Terrain == TerrainWall {
				t.Terrain = TerrainSecondary
			}
			switch b.rng.Intn(4) {
			case 0:
				x++
			case 1:
				x--
			case 2:
				y++
			default:
				y--
			}
			if !inInterior(x, y) {
				break
			}
		}
	}
}

// randomTile picks a random interior tile matching ok. It gives up after a
// bounded number of tries so a full floor cannot hang the builder.
func (b *build) randomTile(ok func(*Tile) bool) (int, int, bool) {
	for try := 0; try < 500; try++ {
		x := 1 + b.rng.Intn(Width-2)
		y := 1 + b.rng.Intn(Height-2)
		if ok(b.at(x, y)) {
			return x, y, true
		}
	}
	return 0, 0, false
}

func (b *build) randomInRoom(rm *room, ok func(*Tile) bool) (int, int, bool) {
	r := rm.bounds
	for try := 0; try < 100; try++ {
		x := r.X1 + b.rng.Intn(r.w())
		y := r.Y1 + b.rng.Intn(r.h())
		if t := b.at(x, y); t.Terrain == TerrainFloor && ok(t) {
			return x, y, true
		}
	}
	return 0, 0, false
}

func free(t *Tile) bool {
	return t.Feature == FeatureNone && t.Room != RoomKecleonShop
}

func (b *build) placeSpawns() error {
	// Stairs and the player start in ordinary rooms, apart when possible.
	var plain []*room
	for _, rm := range b.rooms {
		if rm.kind == RoomNormal {
			plain = append(plain, rm)
		}
	}
	if len(plain) == 0 {
		plain = b.rooms
	}
	order := b.rng.Perm(len(plain))
	stairsRoom := plain[order[0]]
	playerRoom := stairsRoom
	if len(order) > 1 {
		playerRoom = plain[order[1]]
	}

	sx, sy, ok := b.randomInRoom(stairsRoom, free)
	if !ok {
		return fmt.Errorf("%w: no space for stairs", ErrStructure)
	}
	b.at(sx, sy).Feature = FeatureStairs

	px, py, ok := b.randomInRoom(playerRoom, free)
	if !ok {
		return fmt.Errorf("%w: no space for the player", ErrStructure)
	}
	b.at(px, py).Feature = FeaturePlayerSpawn

	spawn := func(count int, feature Feature, pick func() (int, int, bool)) {
		for i := 0; i < count; i++ {
			x, y, ok := pick()
			if !ok {
				return
			}
			b.at(x, y).Feature = feature
		}
	}
	// inRooms picks a free tile in a random room other than skip.
	inRooms := func(skip *room) func() (int, int, bool) {
		var pool []*room
		for _, rm := range b.rooms {
			if rm != skip {
				pool = append(pool, rm)
			}
		}
		if len(pool) == 0 {
			pool = b.rooms
		}
		return func() (int, int, bool) {
			return b.randomInRoom(pool[b.rng.Intn(len(pool))], free)
		}
	}

	d := b.layout
	spawn(density(b.rng, d.InitialEnemyDensity), FeatureEnemy, inRooms(playerRoom))
	spawn(density(b.rng, d.ItemDensity), FeatureItem, inRooms(nil))
	spawn(density(b.rng, d.TrapDensity), FeatureTrap, inRooms(playerRoom))
	spawn(density(b.rng, d.BuriedItemDensity), FeatureBuriedItem, func() (int, int, bool) {
		return b.randomTile(func(t *Tile) bool { return t.Terrain == TerrainWall && t.Feature == FeatureNone })
	})

	for _, rm := range b.rooms {
		if rm.kind != RoomMonsterHouse {
			continue
		}
		area := rm.bounds.w() * rm.bounds.h()
		in := func() (int, int, bool) { return b.randomInRoom(rm, free) }
		spawn(area/6, FeatureEnemy, in)
		spawn(area/10, FeatureItem, in)
		spawn(area/12, FeatureTrap, in)
	}
	return nil
}

// density turns a layout density into a spawn count between half the
// density and the density itself.
func density(rng *rand.Rand, d int) int {
	if d <= 0 {
		return 0
	}
	return d/2 + rng.Intn(d-d/2+1)
}

// connected reports whether every floor tile is reachable from the player.
func (b *build) connected() bool {
	start := -1
	floors := 0
	for i, t := range b.tiles {
		if t.Terrain == TerrainFloor {
			floors++
			if t.Feature == FeaturePlayerSpawn {
				start = i
			}
		}
	}
	if start < 0 {
		return false
	}

	seen := make([]bool, len(b.tiles))
	seen[start] = true
	queue := []int{start}
	reached := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		reached++
		x, y := i%Width, i/Width
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= Width || ny >= Height {
				continue
			}
			n := Index(nx, ny)
			if !seen[n] && b.tiles[n].Terrain == TerrainFloor {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return reached == floors
}
