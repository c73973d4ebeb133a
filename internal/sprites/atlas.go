// Package sprites provides the monster, trap and item images drawn on top of
// a rendered floor.
package sprites

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
)

// Asset file names below the asset root.
const (
	MonsterTableFile = "monster.md"
	MonsterSheetFile = "monster.bin"
	ItemTableFile    = "item_p.bin"
	TrapStripFile    = "traps.trp.img"
	ItemStripFile    = "items.itm.img"
)

// Sprite is a ready-to-draw image. Origin is the pixel of Image that sits
// on the anchor point; it is zero for traps and items.
type Sprite struct {
	Image  *image.NRGBA
	Origin image.Point
}

// LookupError reports a sprite that could not be produced.
type LookupError struct {
	Kind string
	ID   int
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("error loading %s sprite for %d: %v", e.Kind, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// trapPalettes selects the strip palette for each trap sprite. Ids 25 and
// 26 have no sprite.
var trapPalettes = map[int]int{
	0: 0, 1: 1, 2: 1, 3: 1, 4: 1, 5: 0, 6: 1, 7: 1, 8: 1, 9: 1,
	10: 1, 11: 1, 12: 1, 13: 1, 14: 1, 15: 1, 16: 0, 17: 0, 18: 1, 19: 0,
	20: 1, 21: 1, 22: 0, 23: 1, 24: 1,
	27: 0, // stairs down
	28: 0, // stairs up
	29: 1, // rescue point
	30: 1, // kecleon shop
	31: 0, // key wall
	32: 0, // destroyed pitfall
	33: 1,
}

// Well known trap sprite ids that are not traps.
const (
	StairsSprite  = 28
	KecleonSprite = 30
	KeyWallSprite = 31
)

// Files holds the raw asset files.
type Files struct {
	MonsterTable []byte
	MonsterBin   []byte
	ItemTable    []byte
	TrapStrip    []byte
	ItemStrip    []byte
}

// Atlas serves sprites. It is safe for concurrent use; decoded monster
// sheets are cached.
type Atlas struct {
	monsters []int
	sheets   [][]byte
	items    []itemEntry
	traps    *strip
	itemImgs *strip

	mu     sync.Mutex
	decode map[int]*sheetEntry
}

type sheetEntry struct {
	once  sync.Once
	sheet *sheet
	err   error
}

// Load reads the asset files from dir.
func Load(dir string) (*Atlas, error) {
	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read sprite asset: %w", err)
		}
		return data, nil
	}
	var f Files
	var err error
	for _, p := range []struct {
		name string
		dst  *[]byte
	}{
		{MonsterTableFile, &f.MonsterTable},
		{MonsterSheetFile, &f.MonsterBin},
		{ItemTableFile, &f.ItemTable},
		{TrapStripFile, &f.TrapStrip},
		{ItemStripFile, &f.ItemStrip},
	} {
		if *p.dst, err = read(p.name); err != nil {
			return nil, err
		}
	}
	return New(f)
}

// New decodes the asset tables. Monster sheets are decoded on first use.
func New(f Files) (*Atlas, error) {
	monsters, err := decodeMonsterTable(f.MonsterTable)
	if err != nil {
		return nil, err
	}
	sheets, err := decodeBinPack(f.MonsterBin)
	if err != nil {
		return nil, err
	}
	items, err := decodeItemTable(f.ItemTable)
	if err != nil {
		return nil, err
	}
	traps, err := decodeStrip(TrapStripFile, f.TrapStrip)
	if err != nil {
		return nil, err
	}
	itemImgs, err := decodeStrip(ItemStripFile, f.ItemStrip)
	if err != nil {
		return nil, err
	}
	return &Atlas{
		monsters: monsters,
		sheets:   sheets,
		items:    items,
		traps:    traps,
		itemImgs: itemImgs,
		decode:   make(map[int]*sheetEntry),
	}, nil
}

// Monster returns the first frame of the idle animation of species facing
// direction. Direction 0 and 1 both select the first direction.
func (a *Atlas) Monster(species, direction int) (*Sprite, error) {
	fail := func(format string, args ...any) (*Sprite, error) {
		return nil, &LookupError{Kind: "monster", ID: species, Err: fmt.Errorf(format, args...)}
	}
	if species < 0 || species >= len(a.monsters) {
		return fail("no monster table entry (%d entries)", len(a.monsters))
	}
	idx := a.monsters[species]
	if idx < 0 {
		return fail("monster has no sprite")
	}
	sh, err := a.sheet(idx)
	if err != nil {
		return fail("sprite %d: %w", idx, err)
	}
	if len(sh.Groups) == 0 {
		return fail("sprite %d has no animation groups", idx)
	}
	dir := 0
	if direction > 0 {
		dir = direction - 1
	}
	group := sh.Groups[0]
	if dir >= len(group) || len(group[dir]) == 0 {
		return fail("sprite %d has no frames for direction %d", idx, dir)
	}
	fr := sh.Frames[group[dir][0]]

	img := image.NewNRGBA(image.Rect(0, 0, fr.Width, fr.Height))
	for i, p := range fr.Pixels {
		if p == 0 {
			continue
		}
		img.Set(i%fr.Width, i/fr.Width, sh.Palette[p])
	}
	return &Sprite{Image: img, Origin: image.Pt(fr.OriginX, fr.OriginY)}, nil
}

func (a *Atlas) sheet(idx int) (*sheet, error) {
	if idx >= len(a.sheets) {
		return nil, fmt.Errorf("not in %s (%d files)", MonsterSheetFile, len(a.sheets))
	}
	a.mu.Lock()
	e, ok := a.decode[idx]
	if !ok {
		e = &sheetEntry{}
		a.decode[idx] = e
	}
	a.mu.Unlock()

	e.once.Do(func() {
		e.sheet, e.err = decodeSheet(a.sheets[idx])
	})
	return e.sheet, e.err
}

// Trap returns the sprite of a trap or of one of the special markers.
func (a *Atlas) Trap(id int) (*Sprite, error) {
	pal, ok := trapPalettes[id]
	if !ok {
		return nil, &LookupError{Kind: "trap", ID: id, Err: fmt.Errorf("no palette assignment")}
	}
	img, err := a.traps.render(id, pal)
	if err != nil {
		return nil, &LookupError{Kind: "trap", ID: id, Err: err}
	}
	return &Sprite{Image: img}, nil
}

// Item returns the sprite of an item id. Colour index 0 of every
// sub-palette is transparent.
func (a *Atlas) Item(id int) (*Sprite, error) {
	if id < 0 || id >= len(a.items) {
		return nil, &LookupError{Kind: "item", ID: id, Err: fmt.Errorf("no item table entry (%d entries)", len(a.items))}
	}
	e := a.items[id]
	img, err := a.itemImgs.render(int(e.Sprite), int(e.Palette))
	if err != nil {
		return nil, &LookupError{Kind: "item", ID: id, Err: err}
	}
	return &Sprite{Image: img}, nil
}

func (s *strip) render(idx, pal int) (*image.NRGBA, error) {
	if idx < 0 || idx >= len(s.Images) {
		return nil, fmt.Errorf("image %d out of range (%d images)", idx, len(s.Images))
	}
	if pal < 0 || pal >= len(s.Palettes) {
		return nil, fmt.Errorf("palette %d out of range (%d palettes)", pal, len(s.Palettes))
	}
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for i, p := range s.Images[idx] {
		if p%16 == 0 {
			continue
		}
		img.Set(i%s.Width, i/s.Width, s.Palettes[pal][p])
	}
	return img, nil
}
