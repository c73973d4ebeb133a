package tileset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"io"
)

// ErrCorrupt wraps every decoding failure of a binary part.
var ErrCorrupt = errors.New("corrupt tileset data")

// Parts are the raw bytes of the five tileset files.
type Parts struct {
	DMA, DPC, DPCI, DPL, DPLA []byte
}

// Codec decodes tileset parts and imports DTEF archives.
type Codec interface {
	Decode(parts Parts) (*Bundle, error)
	ImportDTEF(base *Bundle, files DTEFFiles) (*Bundle, error)
}

// BinaryCodec reads and writes the little-endian tileset formats.
//
//	DMA   2304 u16 chunk indices, see dmaIndex
//	DPC   chunks of 9 u16 mappings: bits 0-9 tile, 10 flip x, 11 flip y, 12-15 palette
//	DPCI  4bpp tiles of 32 bytes, low nibble is the left pixel
//	DPL   palettes of 16 colours, 4 bytes each (r, g, b, unused)
//	DPLA  u16 slot count, then per slot u16 duration, u16 frame count, frames of 4 bytes
type BinaryCodec struct{}

// Decode implements Codec.
func (c BinaryCodec) Decode(parts Parts) (*Bundle, error) {
	dma, err := DecodeDMA(parts.DMA)
	if err != nil {
		return nil, err
	}
	dpc, err := DecodeDPC(parts.DPC)
	if err != nil {
		return nil, err
	}
	dpci, err := DecodeDPCI(parts.DPCI)
	if err != nil {
		return nil, err
	}
	dpl, err := DecodeDPL(parts.DPL)
	if err != nil {
		return nil, err
	}
	dpla, err := DecodeDPLA(parts.DPLA)
	if err != nil {
		return nil, err
	}
	return &Bundle{DMA: dma, DPC: dpc, DPCI: dpci, DPL: dpl, DPLA: dpla}, nil
}

// Encode serialises a bundle into its five parts.
func (c BinaryCodec) Encode(b *Bundle) Parts {
	return Parts{
		DMA:  EncodeDMA(b.DMA),
		DPC:  EncodeDPC(b.DPC),
		DPCI: EncodeDPCI(b.DPCI),
		DPL:  EncodeDPL(b.DPL),
		DPLA: EncodeDPLA(b.DPLA),
	}
}

// DecodeDMA reads the chunk mapping table, one uint16 per entry.
func DecodeDMA(data []byte) (*DMA, error) {
	if len(data) != dmaEntries*2 {
		return nil, fmt.Errorf("%w: dma is %d bytes, want %d", ErrCorrupt, len(data), dmaEntries*2)
	}
	dma := &DMA{}
	for i := range dma.Chunks {
		dma.Chunks[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return dma, nil
}

// EncodeDMA is the inverse of DecodeDMA.
func EncodeDMA(dma *DMA) []byte {
	out := make([]byte, dmaEntries*2)
	for i, v := range dma.Chunks {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

const chunkBytes = ChunkTiles * ChunkTiles * 2

// DecodeDPC reads 3x3 chunks of packed tile mappings.
func DecodeDPC(data []byte) (*DPC, error) {
	if len(data)%chunkBytes != 0 {
		return nil, fmt.Errorf("%w: dpc length %d is not a multiple of %d", ErrCorrupt, len(data), chunkBytes)
	}
	dpc := &DPC{Chunks: make([]Chunk, len(data)/chunkBytes)}
	for i := range dpc.Chunks {
		for j := range dpc.Chunks[i] {
			v := binary.LittleEndian.Uint16(data[i*chunkBytes+j*2:])
			dpc.Chunks[i][j] = TileMapping{
				Index:   int(v & 0x3FF),
				FlipX:   v&0x400 != 0,
				FlipY:   v&0x800 != 0,
				Palette: int(v >> 12),
			}
		}
	}
	return dpc, nil
}

// EncodeDPC is the inverse of DecodeDPC.
func EncodeDPC(dpc *DPC) []byte {
	out := make([]byte, len(dpc.Chunks)*chunkBytes)
	for i, ch := range dpc.Chunks {
		for j, m := range ch {
			v := uint16(m.Index&0x3FF) | uint16(m.Palette&0xF)<<12
			if m.FlipX {
				v |= 0x400
			}
			if m.FlipY {
				v |= 0x800
			}
			binary.LittleEndian.PutUint16(out[i*chunkBytes+j*2:], v)
		}
	}
	return out
}

// DecodeDPCI reads 4bpp tiles, low nibble first.
func DecodeDPCI(data []byte) (*DPCI, error) {
	if len(data)%TileBytes != 0 {
		return nil, fmt.Errorf("%w: dpci length %d is not a multiple of %d", ErrCorrupt, len(data), TileBytes)
	}
	dpci := &DPCI{Tiles: make([][TileDim * TileDim]uint8, len(data)/TileBytes)}
	for i := range dpci.Tiles {
		raw := data[i*TileBytes : (i+1)*TileBytes]
		for j, b := range raw {
			dpci.Tiles[i][j*2] = b & 0x0F
			dpci.Tiles[i][j*2+1] = b >> 4
		}
	}
	return dpci, nil
}

// EncodeDPCI is the inverse of DecodeDPCI.
func EncodeDPCI(dpci *DPCI) []byte {
	out := make([]byte, len(dpci.Tiles)*TileBytes)
	for i, t := range dpci.Tiles {
		for j := 0; j < TileBytes; j++ {
			out[i*TileBytes+j] = t[j*2]&0x0F | (t[j*2+1]&0x0F)<<4
		}
	}
	return out
}

const paletteBytes = PaletteSize * 4

// DecodeDPL reads 16-colour palettes stored as RGBX quadruples.
func DecodeDPL(data []byte) (*DPL, error) {
	if len(data) == 0 || len(data)%paletteBytes != 0 {
		return nil, fmt.Errorf("%w: dpl length %d is not a positive multiple of %d", ErrCorrupt, len(data), paletteBytes)
	}
	dpl := &DPL{Palettes: make([][PaletteSize]color.RGBA, len(data)/paletteBytes)}
	for i := range dpl.Palettes {
		for j := 0; j < PaletteSize; j++ {
			o := i*paletteBytes + j*4
			dpl.Palettes[i][j] = color.RGBA{R: data[o], G: data[o+1], B: data[o+2], A: 0xFF}
		}
	}
	return dpl, nil
}

// EncodeDPL is the inverse of DecodeDPL.
func EncodeDPL(dpl *DPL) []byte {
	out := make([]byte, len(dpl.Palettes)*paletteBytes)
	for i, p := range dpl.Palettes {
		for j, c := range p {
			o := i*paletteBytes + j*4
			out[o], out[o+1], out[o+2] = c.R, c.G, c.B
		}
	}
	return out
}

// DecodeDPLA reads the palette animation slots.
func DecodeDPLA(data []byte) (*DPLA, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: dpla header: %v", ErrCorrupt, err)
	}
	dpla := &DPLA{Slots: make([]PaletteAnimation, count)}
	for i := range dpla.Slots {
		var hdr struct {
			Duration uint16
			Frames   uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, fmt.Errorf("%w: dpla slot %d: %v", ErrCorrupt, i, err)
		}
		raw := make([]byte, int(hdr.Frames)*4)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: dpla slot %d frames: %v", ErrCorrupt, i, err)
		}
		slot := PaletteAnimation{Duration: int(hdr.Duration), Frames: make([]color.RGBA, hdr.Frames)}
		for f := range slot.Frames {
			slot.Frames[f] = color.RGBA{R: raw[f*4], G: raw[f*4+1], B: raw[f*4+2], A: 0xFF}
		}
		dpla.Slots[i] = slot
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: dpla has %d trailing bytes", ErrCorrupt, r.Len())
	}
	return dpla, nil
}

// EncodeDPLA is the inverse of DecodeDPLA.
func EncodeDPLA(dpla *DPLA) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(len(dpla.Slots)))
	for _, s := range dpla.Slots {
		binary.Write(&buf, binary.LittleEndian, uint16(s.Duration))
		binary.Write(&buf, binary.LittleEndian, uint16(len(s.Frames)))
		for _, c := range s.Frames {
			buf.Write([]byte{c.R, c.G, c.B, 0})
		}
	}
	return buf.Bytes()
}
