// Package tileset loads dungeon tilesets: the five co-indexed parts that
// describe how a terrain grid turns into pixels.
package tileset

import (
	"fmt"
	"image/color"
)

// Tile and chunk geometry.
const (
	TileDim     = 8  // pixels per tile side
	ChunkTiles  = 3  // tiles per chunk side
	ChunkDim    = TileDim * ChunkTiles
	TileBytes   = TileDim * TileDim / 2
	PaletteSize = 16
)

// DMAType is the terrain category used for autotiling.
type DMAType int

const (
	DMAWall DMAType = iota
	DMAWater
	DMAFloor
)

// Neighbour bits of a DMA mask. A set bit means the neighbour in that
// direction has the same terrain category.
const (
	NeighbourS  uint8 = 0x01
	NeighbourSE uint8 = 0x02
	NeighbourE  uint8 = 0x04
	NeighbourNE uint8 = 0x08
	NeighbourN  uint8 = 0x10
	NeighbourNW uint8 = 0x20
	NeighbourW  uint8 = 0x40
	NeighbourSW uint8 = 0x80
)

// DMAVariations is the number of chunk variations per mask.
const DMAVariations = 3

// dmaEntries is 3 types * 256 masks * 3 variations.
const dmaEntries = 3 * 256 * DMAVariations

// DMA maps (terrain, neighbour mask, variation) to a DPC chunk index.
type DMA struct {
	Chunks [dmaEntries]uint16
}

func dmaIndex(typ DMAType, mask uint8, variation int) int {
	return int(typ)*0x300 + int(mask)*DMAVariations + variation
}

// Get returns the chunk variations for a terrain and neighbour mask.
func (d *DMA) Get(typ DMAType, mask uint8) [DMAVariations]uint16 {
	var out [DMAVariations]uint16
	base := dmaIndex(typ, mask, 0)
	copy(out[:], d.Chunks[base:base+DMAVariations])
	return out
}

// Set stores one chunk index.
func (d *DMA) Set(typ DMAType, mask uint8, variation int, chunk uint16) {
	d.Chunks[dmaIndex(typ, mask, variation)] = chunk
}

// TileMapping places one DPCI tile inside a chunk.
type TileMapping struct {
	Index   int
	FlipX   bool
	FlipY   bool
	Palette int
}

// Chunk is a 3x3 block of tile mappings, row-major.
type Chunk [ChunkTiles * ChunkTiles]TileMapping

// DPC holds the chunk table.
type DPC struct {
	Chunks []Chunk
}

// DPCI holds 4bpp 8x8 tiles. Each tile is stored unpacked, one palette
// index per pixel.
type DPCI struct {
	Tiles [][TileDim * TileDim]uint8
}

// DPL holds the static palettes.
type DPL struct {
	Palettes [][PaletteSize]color.RGBA
}

// DPLA holds animated palette slots. Each slot cycles through its frames.
type DPLA struct {
	Slots []PaletteAnimation
}

// PaletteAnimation is one animated palette colour.
type PaletteAnimation struct {
	Duration int
	Frames   []color.RGBA
}

// Bundle is a complete tileset.
type Bundle struct {
	DMA  *DMA
	DPC  *DPC
	DPCI *DPCI
	DPL  *DPL
	DPLA *DPLA
}

// Palette returns a static palette by index.
func (b *Bundle) Palette(i int) (*[PaletteSize]color.RGBA, error) {
	if i < 0 || i >= len(b.DPL.Palettes) {
		return nil, fmt.Errorf("palette %d out of range (%d palettes)", i, len(b.DPL.Palettes))
	}
	return &b.DPL.Palettes[i], nil
}

// Chunk returns a chunk by index.
func (b *Bundle) Chunk(i int) (*Chunk, error) {
	if i < 0 || i >= len(b.DPC.Chunks) {
		return nil, fmt.Errorf("chunk %d out of range (%d chunks)", i, len(b.DPC.Chunks))
	}
	return &b.DPC.Chunks[i], nil
}

// Tile returns the unpacked pixels of a tile.
func (b *Bundle) Tile(i int) (*[TileDim * TileDim]uint8, error) {
	if i < 0 || i >= len(b.DPCI.Tiles) {
		return nil, fmt.Errorf("tile %d out of range (%d tiles)", i, len(b.DPCI.Tiles))
	}
	return &b.DPCI.Tiles[i], nil
}

// Clone returns a deep copy, so an import can start from a shared bundle
// without touching it.
func (b *Bundle) Clone() *Bundle {
	dma := *b.DMA
	dpc := &DPC{Chunks: append([]Chunk(nil), b.DPC.Chunks...)}
	dpci := &DPCI{Tiles: append([][TileDim * TileDim]uint8(nil), b.DPCI.Tiles...)}
	dpl := &DPL{Palettes: append([][PaletteSize]color.RGBA(nil), b.DPL.Palettes...)}
	dpla := &DPLA{Slots: make([]PaletteAnimation, len(b.DPLA.Slots))}
	for i, s := range b.DPLA.Slots {
		dpla.Slots[i] = PaletteAnimation{Duration: s.Duration, Frames: append([]color.RGBA(nil), s.Frames...)}
	}
	return &Bundle{DMA: &dma, DPC: dpc, DPCI: dpci, DPL: dpl, DPLA: dpla}
}

// blobMasks lists, in ascending order, the 47 neighbour masks in which a
// diagonal bit is only set together with both adjacent orthogonal bits.
var blobMasks = func() []uint8 {
	var out []uint8
	for m := 0; m < 256; m++ {
		if ReduceMask(uint8(m)) == uint8(m) {
			out = append(out, uint8(m))
		}
	}
	return out
}()

// ReduceMask clears diagonal bits whose adjacent orthogonal bits are not
// both set. Such diagonals never change how a tile looks.
func ReduceMask(m uint8) uint8 {
	diag := []struct{ bit, a, b uint8 }{
		{NeighbourSE, NeighbourS, NeighbourE},
		{NeighbourNE, NeighbourN, NeighbourE},
		{NeighbourNW, NeighbourN, NeighbourW},
		{NeighbourSW, NeighbourS, NeighbourW},
	}
	for _, d := range diag {
		if m&d.bit != 0 && (m&d.a == 0 || m&d.b == 0) {
			m &^= d.bit
		}
	}
	return m
}
