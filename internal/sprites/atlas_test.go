package sprites

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	red   = color.RGBA{R: 0xFF, A: 0xFF}
	green = color.RGBA{G: 0xFF, A: 0xFF}
	blue  = color.RGBA{B: 0xFF, A: 0xFF}
)

func le(vs ...any) []byte {
	var buf bytes.Buffer
	for _, v := range vs {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func monsterTable(spriteIdx ...int16) []byte {
	out := append([]byte(mdMagic), le(uint32(len(spriteIdx)))...)
	for _, idx := range spriteIdx {
		entry := make([]byte, mdEntrySize)
		binary.LittleEndian.PutUint16(entry[mdSpriteIndexOff:], uint16(idx))
		out = append(out, entry...)
	}
	return out
}

func binPack(files ...[]byte) []byte {
	out := le(uint32(0), uint32(len(files)))
	off := 8 + 8*len(files)
	for _, f := range files {
		out = append(out, le(uint32(off), uint32(len(f)))...)
		off += len(f)
	}
	for _, f := range files {
		out = append(out, f...)
	}
	return out
}

// testSheet has two frames. Direction 0 shows frame 0, direction 1 frame 1.
func testSheet() []byte {
	out := []byte(sheetMagic)
	out = append(out, le(uint16(3))...)
	out = append(out, 0, 0, 0, 0, 0xFF, 0, 0, 0xFF, 0, 0, 0xFF, 0xFF)
	out = append(out, le(uint16(2))...)
	out = append(out, le(uint16(2), uint16(2), int16(1), int16(2))...)
	out = append(out, 1, 0, 0, 2)
	out = append(out, le(uint16(1), uint16(1), int16(0), int16(0))...)
	out = append(out, 2)
	out = append(out, le(uint16(1), uint16(2), uint16(1), uint16(0), uint16(1), uint16(1))...)
	return out
}

func itemTable(entries ...itemEntry) []byte {
	var out []byte
	for _, e := range entries {
		rec := make([]byte, itemEntrySize)
		rec[itemCategoryOff] = e.Category
		rec[itemSpriteOff] = e.Sprite
		binary.LittleEndian.PutUint16(rec[itemIDOff:], e.ID)
		rec[itemPaletteOff] = e.Palette
		out = append(out, rec...)
	}
	return out
}

// stripFile builds count 2x2 images with pixels 0, 1, 2, 3 and two
// palettes: colour 1 is red in palette 0 and green in palette 1.
func stripFile(count int) []byte {
	out := append([]byte(stripMagic), le(uint16(2), uint16(2), uint16(count), uint16(2))...)
	for p, c := range []color.RGBA{red, green} {
		for i := 0; i < 16; i++ {
			switch i {
			case 1:
				out = append(out, c.R, c.G, c.B, 0)
			case 2:
				out = append(out, 0, 0, 0xFF, 0)
			default:
				out = append(out, uint8(p), uint8(i), 0, 0)
			}
		}
	}
	for i := 0; i < count; i++ {
		out = append(out, 0x10, 0x32)
	}
	return out
}

func testFiles() Files {
	return Files{
		MonsterTable: monsterTable(0, 1, -1, 9),
		MonsterBin:   binPack(testSheet(), []byte("junk")),
		ItemTable: itemTable(
			itemEntry{Category: 6, Sprite: 0, ID: 0, Palette: 0},
			itemEntry{Category: 9, Sprite: 1, ID: 1, Palette: 1},
			itemEntry{Category: 9, Sprite: 7, ID: 2, Palette: 0},
		),
		TrapStrip: stripFile(34),
		ItemStrip: stripFile(2),
	}
}

func testAtlas(t *testing.T) *Atlas {
	t.Helper()
	a, err := New(testFiles())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestMonsterDirections(t *testing.T) {
	a := testAtlas(t)

	tests := []struct {
		direction int
		width     int
		origin    [2]int
		first     color.RGBA
	}{
		{0, 2, [2]int{1, 2}, red},
		{1, 2, [2]int{1, 2}, red},
		{2, 1, [2]int{0, 0}, blue},
	}

	for _, tt := range tests {
		s, err := a.Monster(0, tt.direction)
		if err != nil {
			t.Fatalf("Monster(0, %d) failed: %v", tt.direction, err)
		}
		if got := s.Image.Bounds().Dx(); got != tt.width {
			t.Errorf("direction %d: width = %d, want %d", tt.direction, got, tt.width)
		}
		if s.Origin.X != tt.origin[0] || s.Origin.Y != tt.origin[1] {
			t.Errorf("direction %d: origin = %v, want %v", tt.direction, s.Origin, tt.origin)
		}
		if got := rgba(s.Image.At(0, 0)); got != tt.first {
			t.Errorf("direction %d: pixel 0,0 = %v, want %v", tt.direction, got, tt.first)
		}
	}
}

func TestMonsterTransparentIndex(t *testing.T) {
	a := testAtlas(t)
	s, err := a.Monster(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := rgba(s.Image.At(1, 0)); got.A != 0 {
		t.Errorf("index 0 should be transparent, got %v", got)
	}
	if got := rgba(s.Image.At(1, 1)); got != blue {
		t.Errorf("pixel 1,1 = %v, want blue", got)
	}
}

func TestMonsterLookupErrors(t *testing.T) {
	a := testAtlas(t)

	tests := []struct {
		name      string
		species   int
		direction int
	}{
		{"no table entry", 4, 0},
		{"negative species", -1, 0},
		{"no sprite", 2, 0},
		{"sprite not in pack", 3, 0},
		{"undecodable sheet", 1, 0},
		{"missing direction", 0, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Monster(tt.species, tt.direction)
			var lookupErr *LookupError
			if !errors.As(err, &lookupErr) {
				t.Fatalf("expected *LookupError, got %v", err)
			}
			if lookupErr.Kind != "monster" || lookupErr.ID != tt.species {
				t.Errorf("LookupError = %+v", lookupErr)
			}
		})
	}
}

func TestMonsterConcurrent(t *testing.T) {
	a := testAtlas(t)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Monster(0, i%3); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestTrapPalettes(t *testing.T) {
	a := testAtlas(t)

	tests := []struct {
		id   int
		want color.RGBA
	}{
		{0, red},
		{1, green},
		{5, red},
		{18, green},
		{StairsSprite, red},
		{KecleonSprite, green},
		{KeyWallSprite, red},
		{33, green},
	}

	for _, tt := range tests {
		s, err := a.Trap(tt.id)
		if err != nil {
			t.Fatalf("Trap(%d) failed: %v", tt.id, err)
		}
		if got := rgba(s.Image.At(1, 0)); got != tt.want {
			t.Errorf("Trap(%d) colour = %v, want %v", tt.id, got, tt.want)
		}
		if got := rgba(s.Image.At(0, 0)); got.A != 0 {
			t.Errorf("Trap(%d) index 0 should be transparent", tt.id)
		}
	}

	for _, id := range []int{25, 26, 34, -1} {
		if _, err := a.Trap(id); err == nil {
			t.Errorf("Trap(%d) should fail", id)
		}
	}
}

func TestItem(t *testing.T) {
	a := testAtlas(t)

	s, err := a.Item(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := rgba(s.Image.At(1, 0)); got != green {
		t.Errorf("item 1 uses palette 1, got %v", got)
	}
	if got := rgba(s.Image.At(0, 0)); got.A != 0 {
		t.Errorf("index 0 should be transparent, got %v", got)
	}
	if s.Origin.X != 0 || s.Origin.Y != 0 {
		t.Errorf("item origin = %v, want zero", s.Origin)
	}

	for _, id := range []int{2, 3, -1} {
		_, err := a.Item(id)
		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) || lookupErr.Kind != "item" {
			t.Errorf("Item(%d) error = %v, want item LookupError", id, err)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	f := testFiles()
	for name, data := range map[string][]byte{
		MonsterTableFile: f.MonsterTable,
		MonsterSheetFile: f.MonsterBin,
		ItemTableFile:    f.ItemTable,
		TrapStripFile:    f.TrapStrip,
		ItemStripFile:    f.ItemStrip,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	a, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := a.Monster(0, 0); err != nil {
		t.Errorf("Monster failed: %v", err)
	}

	os.Remove(filepath.Join(dir, ItemStripFile))
	if _, err := Load(dir); err == nil {
		t.Error("Load should fail without items.itm.img")
	}
}

func TestNewRejectsMalformedFiles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Files)
	}{
		{"monster table magic", func(f *Files) { f.MonsterTable[0] = 'X' }},
		{"monster table size", func(f *Files) { f.MonsterTable = f.MonsterTable[:len(f.MonsterTable)-1] }},
		{"bin pack header", func(f *Files) { f.MonsterBin[0] = 1 }},
		{"bin pack bounds", func(f *Files) { f.MonsterBin = f.MonsterBin[:len(f.MonsterBin)-1] }},
		{"item table size", func(f *Files) { f.ItemTable = append(f.ItemTable, 0) }},
		{"trap strip magic", func(f *Files) { f.TrapStrip[0] = 'X' }},
		{"item strip trailing", func(f *Files) { f.ItemStrip = append(f.ItemStrip, 0) }},
		{"item strip truncated", func(f *Files) { f.ItemStrip = f.ItemStrip[:len(f.ItemStrip)-1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFiles()
			tt.mutate(&f)
			_, err := New(f)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestDecodeSheetRejectsBadFrameReference(t *testing.T) {
	data := testSheet()
	// Last u16 is the frame id of direction 1.
	binary.LittleEndian.PutUint16(data[len(data)-2:], 5)
	if _, err := decodeSheet(data); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}
