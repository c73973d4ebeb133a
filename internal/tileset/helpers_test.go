package tileset

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// testBundle returns a small, fully populated bundle.
func testBundle() *Bundle {
	dma := &DMA{}
	for i := range dma.Chunks {
		dma.Chunks[i] = uint16(i % 2)
	}
	var tile [TileDim * TileDim]uint8
	for i := range tile {
		tile[i] = uint8(i % PaletteSize)
	}
	var pal [PaletteSize]color.RGBA
	for i := range pal {
		pal[i] = color.RGBA{R: uint8(i * 16), G: 0x20, B: 0x40, A: 0xFF}
	}
	return &Bundle{
		DMA: dma,
		DPC: &DPC{Chunks: []Chunk{
			{},
			{{Index: 1, FlipX: true, Palette: 1}, {Index: 1, FlipY: true}, {Index: 0, Palette: 15}},
		}},
		DPCI: &DPCI{Tiles: [][TileDim * TileDim]uint8{{}, tile}},
		DPL:  &DPL{Palettes: [][PaletteSize]color.RGBA{pal, pal}},
		DPLA: &DPLA{Slots: []PaletteAnimation{
			{Duration: 4, Frames: []color.RGBA{{R: 1, A: 0xFF}, {G: 2, A: 0xFF}}},
		}},
	}
}

// writeBundle stores b below dir with the given file stem.
func writeBundle(t *testing.T, dir, stem string, b *Bundle) {
	t.Helper()
	parts := BinaryCodec{}.Encode(b)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for ext, data := range map[string][]byte{
		"dma": parts.DMA, "dpc": parts.DPC, "dpci": parts.DPCI, "dpl": parts.DPL, "dpla": parts.DPLA,
	} {
		if err := os.WriteFile(filepath.Join(dir, stem+"."+ext), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// dtefPalette has two sub-palettes.
func dtefPalette() color.Palette {
	p := make(color.Palette, 2*PaletteSize)
	for i := range p {
		p[i] = color.RGBA{R: uint8(i * 7), G: uint8(255 - i*7), B: 0x80, A: 0xFF}
	}
	return p
}

// dtefSheet draws every chunk slot in a single colour index derived from
// its terrain block, slot and variation, so each slot is a distinct chunk.
func dtefSheet(variation int) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, DTEFWidth, DTEFHeight), dtefPalette())
	for cy := 0; cy < dtefRows; cy++ {
		for cx := 0; cx < 3*dtefBlockCols; cx++ {
			idx := uint8((cx*3+cy+variation)%15 + 1)
			if cx%2 == 1 {
				idx += PaletteSize
			}
			for y := 0; y < ChunkDim; y++ {
				for x := 0; x < ChunkDim; x++ {
					img.SetColorIndex(cx*ChunkDim+x, cy*ChunkDim+y, idx)
				}
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const dtefXML = `<DungeonTileset version="1.0.0" dimensions="24">
  <AnimationSettings>
    <PaletteAnimation10 duration="8"><Color>#FF0000</Color><Color>#00FF00</Color></PaletteAnimation10>
  </AnimationSettings>
</DungeonTileset>`

func dtefFiles(t *testing.T) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		DTEFXMLName: []byte(dtefXML),
		DTEFVar0:    encodePNG(t, dtefSheet(0)),
		DTEFVar1:    encodePNG(t, dtefSheet(1)),
		DTEFVar2:    encodePNG(t, dtefSheet(2)),
	}
}

// zipOf builds an archive with the given members in name order of names.
func zipOf(t *testing.T, names []string, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
