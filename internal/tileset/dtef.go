package tileset

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
)

// DTEF archive member names.
const (
	DTEFXMLName = "tileset.dtef.xml"
	DTEFVar0    = "tileset_0.png"
	DTEFVar1    = "tileset_1.png"
	DTEFVar2    = "tileset_2.png"
)

// DTEFMembers lists the members a DTEF archive must contain, in order.
var DTEFMembers = []string{DTEFXMLName, DTEFVar0, DTEFVar1, DTEFVar2}

// ErrInvalidDTEF wraps content errors in an otherwise well-formed archive.
var ErrInvalidDTEF = errors.New("invalid DTEF tileset")

// DTEF sheet geometry: three blocks of 6x8 chunks (wall, water, floor),
// one slot per canonical neighbour mask in ascending order.
const (
	dtefBlockCols = 6
	dtefRows      = 8
	DTEFWidth     = 3 * dtefBlockCols * ChunkDim
	DTEFHeight    = dtefRows * ChunkDim

	maxTiles    = 0x400
	maxPalettes = 16
)

// DTEFFiles holds the contents of a DTEF archive.
type DTEFFiles struct {
	XML        []byte
	Variations [DMAVariations][]byte
}

type dtefDocument struct {
	XMLName    xml.Name `xml:"DungeonTileset"`
	Dimensions int      `xml:"dimensions,attr"`
	Animation  *struct {
		Slots []dtefAnimation `xml:",any"`
	} `xml:"AnimationSettings"`
}

type dtefAnimation struct {
	XMLName  xml.Name
	Duration int      `xml:"duration,attr"`
	Colors   []string `xml:"Color"`
}

// ImportDTEF builds a bundle from a DTEF archive. Tiles and chunks are
// rebuilt from the sheets; the palette animation comes from the XML when
// present and from base otherwise.
func (c BinaryCodec) ImportDTEF(base *Bundle, files DTEFFiles) (*Bundle, error) {
	var doc dtefDocument
	if err := xml.Unmarshal(files.XML, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDTEF, DTEFXMLName, err)
	}
	if doc.Dimensions != ChunkDim {
		return nil, fmt.Errorf("%w: unsupported tile dimensions %d, want %d", ErrInvalidDTEF, doc.Dimensions, ChunkDim)
	}

	var sheets [DMAVariations]*image.Paletted
	for v, data := range files.Variations {
		name := DTEFMembers[v+1]
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDTEF, name, err)
		}
		pal, ok := img.(*image.Paletted)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an indexed image", ErrInvalidDTEF, name)
		}
		if b := pal.Bounds(); b.Dx() != DTEFWidth || b.Dy() != DTEFHeight {
			return nil, fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrInvalidDTEF, name, b.Dx(), b.Dy(), DTEFWidth, DTEFHeight)
		}
		if v > 0 && !samePalette(pal.Palette, sheets[0].Palette) {
			return nil, fmt.Errorf("%w: %s does not share the palette of %s", ErrInvalidDTEF, name, DTEFVar0)
		}
		sheets[v] = pal
	}

	out := base.Clone()
	dpl, err := paletteFromPNG(sheets[0].Palette)
	if err != nil {
		return nil, err
	}
	out.DPL = dpl
	if doc.Animation != nil && len(doc.Animation.Slots) > 0 {
		dpla, err := animationFromXML(doc.Animation.Slots)
		if err != nil {
			return nil, err
		}
		out.DPLA = dpla
	}

	imp := &dtefImport{
		dpc:    &DPC{Chunks: []Chunk{{}}},
		dpci:   &DPCI{Tiles: make([][TileDim * TileDim]uint8, 1)},
		tiles:  map[[TileDim * TileDim]uint8]int{{}: 0},
		chunks: map[Chunk]int{{}: 0},
	}
	dma := &DMA{}
	for v, sheet := range sheets {
		for t := DMAWall; t <= DMAFloor; t++ {
			for k, mask := range blobMasks {
				col, row := k%dtefBlockCols, k/dtefBlockCols
				px := (int(t)*dtefBlockCols + col) * ChunkDim
				py := row * ChunkDim
				idx, err := imp.chunkAt(sheet, px, py)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDTEF, DTEFMembers[v+1], err)
				}
				dma.Set(t, mask, v, uint16(idx))
			}
		}
	}
	for t := DMAWall; t <= DMAFloor; t++ {
		for m := 0; m < 256; m++ {
			if r := ReduceMask(uint8(m)); r != uint8(m) {
				for v := 0; v < DMAVariations; v++ {
					dma.Set(t, uint8(m), v, dma.Get(t, r)[v])
				}
			}
		}
	}

	out.DMA = dma
	out.DPC = imp.dpc
	out.DPCI = imp.dpci
	return out, nil
}

type dtefImport struct {
	dpc    *DPC
	dpci   *DPCI
	tiles  map[[TileDim * TileDim]uint8]int
	chunks map[Chunk]int
}

func (imp *dtefImport) chunkAt(sheet *image.Paletted, px, py int) (int, error) {
	var ch Chunk
	for ty := 0; ty < ChunkTiles; ty++ {
		for tx := 0; tx < ChunkTiles; tx++ {
			ox, oy := px+tx*TileDim, py+ty*TileDim
			var pixels [TileDim * TileDim]uint8
			palette := -1
			for y := 0; y < TileDim; y++ {
				for x := 0; x < TileDim; x++ {
					p := int(sheet.ColorIndexAt(sheet.Rect.Min.X+ox+x, sheet.Rect.Min.Y+oy+y))
					if palette < 0 {
						palette = p / PaletteSize
					} else if p/PaletteSize != palette {
						return 0, fmt.Errorf("tile at %d,%d mixes palettes %d and %d", ox, oy, palette, p/PaletteSize)
					}
					pixels[y*TileDim+x] = uint8(p % PaletteSize)
				}
			}
			idx, ok := imp.tiles[pixels]
			if !ok {
				if len(imp.dpci.Tiles) >= maxTiles {
					return 0, fmt.Errorf("more than %d distinct tiles", maxTiles)
				}
				idx = len(imp.dpci.Tiles)
				imp.dpci.Tiles = append(imp.dpci.Tiles, pixels)
				imp.tiles[pixels] = idx
			}
			ch[ty*ChunkTiles+tx] = TileMapping{Index: idx, Palette: palette}
		}
	}
	idx, ok := imp.chunks[ch]
	if !ok {
		idx = len(imp.dpc.Chunks)
		imp.dpc.Chunks = append(imp.dpc.Chunks, ch)
		imp.chunks[ch] = idx
	}
	return idx, nil
}

func samePalette(a, b color.Palette) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if color.RGBAModel.Convert(a[i]) != color.RGBAModel.Convert(b[i]) {
			return false
		}
	}
	return true
}

func paletteFromPNG(p color.Palette) (*DPL, error) {
	n := (len(p) + PaletteSize - 1) / PaletteSize
	if n > maxPalettes {
		return nil, fmt.Errorf("%w: %d palettes, at most %d supported", ErrInvalidDTEF, n, maxPalettes)
	}
	dpl := &DPL{Palettes: make([][PaletteSize]color.RGBA, n)}
	for i, c := range p {
		r, g, b, _ := c.RGBA()
		dpl.Palettes[i/PaletteSize][i%PaletteSize] = color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xFF}
	}
	for i := len(p); i < n*PaletteSize; i++ {
		dpl.Palettes[i/PaletteSize][i%PaletteSize] = color.RGBA{A: 0xFF}
	}
	return dpl, nil
}

func animationFromXML(slots []dtefAnimation) (*DPLA, error) {
	dpla := &DPLA{Slots: make([]PaletteAnimation, len(slots))}
	for i, s := range slots {
		frames := make([]color.RGBA, len(s.Colors))
		for f, hex := range s.Colors {
			c, err := parseHexColor(hex)
			if err != nil {
				return nil, fmt.Errorf("%w: %s color %d: %v", ErrInvalidDTEF, s.XMLName.Local, f, err)
			}
			frames[f] = c
		}
		dpla.Slots[i] = PaletteAnimation{Duration: s.Duration, Frames: frames}
	}
	return dpla, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}
