package sprites

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"io"
)

// ErrFormat wraps every decoding failure of a sprite asset file.
var ErrFormat = errors.New("malformed sprite data")

// monster.md: "MD\0\0", u32 entry count, then fixed-size entries. Only the
// sprite index is read.
const (
	mdMagic          = "MD\x00\x00"
	mdEntrySize      = 0x44
	mdSpriteIndexOff = 0x10
)

func decodeMonsterTable(data []byte) ([]int, error) {
	if len(data) < 8 || string(data[:4]) != mdMagic {
		return nil, fmt.Errorf("%w: monster.md: bad header", ErrFormat)
	}
	n := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != 8+n*mdEntrySize {
		return nil, fmt.Errorf("%w: monster.md: %d bytes for %d entries", ErrFormat, len(data), n)
	}
	out := make([]int, n)
	for i := range out {
		o := 8 + i*mdEntrySize + mdSpriteIndexOff
		out[i] = int(int16(binary.LittleEndian.Uint16(data[o:])))
	}
	return out, nil
}

// Bin packs: u32 zero, u32 file count, then (u32 offset, u32 length) per
// file. Offsets are absolute.
func decodeBinPack(data []byte) ([][]byte, error) {
	if len(data) < 8 || binary.LittleEndian.Uint32(data) != 0 {
		return nil, fmt.Errorf("%w: bin pack: bad header", ErrFormat)
	}
	n := int(binary.LittleEndian.Uint32(data[4:]))
	if 8+n*8 > len(data) {
		return nil, fmt.Errorf("%w: bin pack: table of %d files truncated", ErrFormat, n)
	}
	out := make([][]byte, n)
	for i := range out {
		off := int(binary.LittleEndian.Uint32(data[8+i*8:]))
		size := int(binary.LittleEndian.Uint32(data[12+i*8:]))
		if off < 0 || size < 0 || off+size > len(data) {
			return nil, fmt.Errorf("%w: bin pack: file %d out of bounds", ErrFormat, i)
		}
		out[i] = data[off : off+size]
	}
	return out, nil
}

// itemEntry is one record of item_p.bin.
type itemEntry struct {
	Category uint8
	Sprite   uint8
	ID       uint16
	Palette  uint8
}

// item_p.bin: 16-byte records. Offsets of the fields this package reads.
const (
	itemEntrySize   = 16
	itemCategoryOff = 0x04
	itemSpriteOff   = 0x05
	itemIDOff       = 0x06
	itemPaletteOff  = 0x0C
)

func decodeItemTable(data []byte) ([]itemEntry, error) {
	if len(data)%itemEntrySize != 0 {
		return nil, fmt.Errorf("%w: item_p.bin length %d is not a multiple of %d", ErrFormat, len(data), itemEntrySize)
	}
	out := make([]itemEntry, len(data)/itemEntrySize)
	for i := range out {
		rec := data[i*itemEntrySize:]
		out[i] = itemEntry{
			Category: rec[itemCategoryOff],
			Sprite:   rec[itemSpriteOff],
			ID:       binary.LittleEndian.Uint16(rec[itemIDOff:]),
			Palette:  rec[itemPaletteOff],
		}
	}
	return out, nil
}

// strip is a set of equally sized 4bpp images sharing a set of 16-colour
// palettes.
//
//	"STRP", u16 width, u16 height, u16 image count, u16 palette count,
//	palettes (16 colours of r, g, b, unused), images (low nibble left)
type strip struct {
	Width, Height int
	Palettes      [][16]color.RGBA
	Images        [][]uint8
}

const stripMagic = "STRP"

func decodeStrip(name string, data []byte) (*strip, error) {
	r := bytes.NewReader(data)
	var hdr struct {
		Magic    [4]byte
		Width    uint16
		Height   uint16
		Images   uint16
		Palettes uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", ErrFormat, name, err)
	}
	if string(hdr.Magic[:]) != stripMagic {
		return nil, fmt.Errorf("%w: %s: bad magic %q", ErrFormat, name, hdr.Magic[:])
	}
	if hdr.Width%2 != 0 {
		return nil, fmt.Errorf("%w: %s: odd width %d", ErrFormat, name, hdr.Width)
	}

	s := &strip{
		Width:    int(hdr.Width),
		Height:   int(hdr.Height),
		Palettes: make([][16]color.RGBA, hdr.Palettes),
		Images:   make([][]uint8, hdr.Images),
	}
	raw := make([]byte, 16*4)
	for i := range s.Palettes {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: %s palette %d: %v", ErrFormat, name, i, err)
		}
		for c := range s.Palettes[i] {
			s.Palettes[i][c] = color.RGBA{R: raw[c*4], G: raw[c*4+1], B: raw[c*4+2], A: 0xFF}
		}
	}
	packed := make([]byte, s.Width*s.Height/2)
	for i := range s.Images {
		if _, err := io.ReadFull(r, packed); err != nil {
			return nil, fmt.Errorf("%w: %s image %d: %v", ErrFormat, name, i, err)
		}
		px := make([]uint8, s.Width*s.Height)
		for j, b := range packed {
			px[j*2] = b & 0x0F
			px[j*2+1] = b >> 4
		}
		s.Images[i] = px
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %s has %d trailing bytes", ErrFormat, name, r.Len())
	}
	return s, nil
}

// sheet is a decoded monster sprite sheet.
//
//	"SPR0"
//	u16 colour count, colours of r, g, b, a (index 0 is always transparent)
//	u16 frame count, per frame u16 w, u16 h, i16 origin x, i16 origin y,
//	    then w*h palette indices
//	u16 group count, per group u16 direction count, per direction
//	    u16 step count and that many u16 frame ids
type sheet struct {
	Palette color.Palette
	Frames  []frame
	Groups  [][][]int
}

type frame struct {
	Width, Height    int
	OriginX, OriginY int
	Pixels           []uint8
}

const sheetMagic = "SPR0"

func decodeSheet(data []byte) (*sheet, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != sheetMagic {
		return nil, fmt.Errorf("%w: sprite sheet: bad magic", ErrFormat)
	}

	u16 := func() (int, error) {
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return int(v), err
	}

	colors, err := u16()
	if err != nil {
		return nil, fmt.Errorf("%w: sprite sheet palette: %v", ErrFormat, err)
	}
	s := &sheet{Palette: make(color.Palette, colors)}
	rgba := make([]byte, 4)
	for i := range s.Palette {
		if _, err := io.ReadFull(r, rgba); err != nil {
			return nil, fmt.Errorf("%w: sprite sheet colour %d: %v", ErrFormat, i, err)
		}
		s.Palette[i] = color.NRGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
	}

	frames, err := u16()
	if err != nil {
		return nil, fmt.Errorf("%w: sprite sheet frames: %v", ErrFormat, err)
	}
	s.Frames = make([]frame, frames)
	for i := range s.Frames {
		var hdr struct {
			Width, Height    uint16
			OriginX, OriginY int16
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, fmt.Errorf("%w: sprite sheet frame %d: %v", ErrFormat, i, err)
		}
		f := frame{
			Width:   int(hdr.Width),
			Height:  int(hdr.Height),
			OriginX: int(hdr.OriginX),
			OriginY: int(hdr.OriginY),
			Pixels:  make([]uint8, int(hdr.Width)*int(hdr.Height)),
		}
		if _, err := io.ReadFull(r, f.Pixels); err != nil {
			return nil, fmt.Errorf("%w: sprite sheet frame %d pixels: %v", ErrFormat, i, err)
		}
		for _, p := range f.Pixels {
			if int(p) >= colors {
				return nil, fmt.Errorf("%w: sprite sheet frame %d uses colour %d of %d", ErrFormat, i, p, colors)
			}
		}
		s.Frames[i] = f
	}

	groups, err := u16()
	if err != nil {
		return nil, fmt.Errorf("%w: sprite sheet groups: %v", ErrFormat, err)
	}
	s.Groups = make([][][]int, groups)
	for g := range s.Groups {
		dirs, err := u16()
		if err != nil {
			return nil, fmt.Errorf("%w: sprite sheet group %d: %v", ErrFormat, g, err)
		}
		s.Groups[g] = make([][]int, dirs)
		for d := range s.Groups[g] {
			steps, err := u16()
			if err != nil {
				return nil, fmt.Errorf("%w: sprite sheet group %d direction %d: %v", ErrFormat, g, d, err)
			}
			seq := make([]int, steps)
			for k := range seq {
				if seq[k], err = u16(); err != nil {
					return nil, fmt.Errorf("%w: sprite sheet group %d direction %d: %v", ErrFormat, g, d, err)
				}
				if seq[k] >= frames {
					return nil, fmt.Errorf("%w: sprite sheet group %d references frame %d of %d", ErrFormat, g, seq[k], frames)
				}
			}
			s.Groups[g][d] = seq
		}
	}
	return s, nil
}
