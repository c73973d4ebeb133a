package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/options"
	"github.com/skytemple/swablu/internal/sprites"
	"github.com/skytemple/swablu/internal/tileset"
)

// ErrInvalidRule is returned for cells that cannot appear in a rendered
// floor.
var ErrInvalidRule = errors.New("invalid rule type while rendering")

// Overlay placement inside a cell, in pixels.
const (
	monsterAnchorX = tileset.ChunkDim / 2
	monsterAnchorY = tileset.ChunkDim * 3 / 4
	itemInset      = 4
)

// SpriteSource provides overlay sprites.
type SpriteSource interface {
	Monster(species, direction int) (*sprites.Sprite, error)
	Trap(id int) (*sprites.Sprite, error)
	Item(id int) (*sprites.Sprite, error)
}

// Rasterizer draws floors with a tileset and a sprite source.
type Rasterizer struct {
	sprites SpriteSource
}

// NewRasterizer returns a Rasterizer drawing overlays from src.
func NewRasterizer(src SpriteSource) *Rasterizer {
	return &Rasterizer{sprites: src}
}

// Render draws floor: the autotiled terrain including the outside margin,
// then every overlay enabled in opts. The image is (w+10)x(h+10) chunks.
func (r *Rasterizer) Render(opts options.Options, floor Floor, bundle *tileset.Bundle) (*image.RGBA, error) {
	grid, err := floor.Categories()
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, len(grid[0])*tileset.ChunkDim, len(grid)*tileset.ChunkDim))
	chunks := make(map[uint16]*image.RGBA)
	for y := range grid {
		for x := range grid[y] {
			idx := bundle.DMA.Get(grid[y][x], grid.Mask(x, y))[0]
			src, ok := chunks[idx]
			if !ok {
				if src, err = drawChunk(bundle, int(idx)); err != nil {
					return nil, fmt.Errorf("cell %d,%d: %w", x-Margin, y-Margin, err)
				}
				chunks[idx] = src
			}
			at := image.Pt(x*tileset.ChunkDim, y*tileset.ChunkDim)
			draw.Draw(img, src.Bounds().Add(at), src, image.Point{}, draw.Src)
		}
	}

	for y := 0; y < floor.Height; y++ {
		for x := 0; x < floor.Width; x++ {
			origin := image.Pt((x+Margin)*tileset.ChunkDim, (y+Margin)*tileset.ChunkDim)
			if err := r.overlay(img, opts, floor.at(x, y), origin); err != nil {
				return nil, fmt.Errorf("cell %d,%d: %w", x, y, err)
			}
		}
	}
	return img, nil
}

// drawChunk paints one chunk opaquely. Palette index 0 is a real colour on
// the terrain layer.
func drawChunk(bundle *tileset.Bundle, idx int) (*image.RGBA, error) {
	ch, err := bundle.Chunk(idx)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, tileset.ChunkDim, tileset.ChunkDim))
	for i, m := range ch {
		tile, err := bundle.Tile(m.Index)
		if err != nil {
			return nil, err
		}
		pal, err := bundle.Palette(m.Palette)
		if err != nil {
			return nil, err
		}
		ox := (i % tileset.ChunkTiles) * tileset.TileDim
		oy := (i / tileset.ChunkTiles) * tileset.TileDim
		for py := 0; py < tileset.TileDim; py++ {
			for px := 0; px < tileset.TileDim; px++ {
				sx, sy := px, py
				if m.FlipX {
					sx = tileset.TileDim - 1 - px
				}
				if m.FlipY {
					sy = tileset.TileDim - 1 - py
				}
				c := pal[tile[sy*tileset.TileDim+sx]]
				c.A = 0xFF
				out.SetRGBA(ox+px, oy+py, c)
			}
		}
	}
	return out, nil
}

func (r *Rasterizer) overlay(img *image.RGBA, opts options.Options, c Cell, origin image.Point) error {
	switch c := c.(type) {
	case SpawnRuleCell:
		return fmt.Errorf("%w: %s spawn", ErrInvalidRule, c.Spawn)
	case RuleCell:
		switch c.Kind {
		case RuleKeyWall:
			return r.trap(img, sprites.KeyWallSprite, origin)
		case RuleWarpZone:
			if opts.Stairs {
				return r.trap(img, sprites.StairsSprite, origin)
			}
		}
		return nil
	case DirectCell:
		return r.direct(img, opts, c, origin)
	}
	return fmt.Errorf("%w: %T", ErrInvalidRule, c)
}

func (r *Rasterizer) direct(img *image.RGBA, opts options.Options, c DirectCell, origin image.Point) error {
	t := c.Tile
	if t.Room == dungeon.RoomKecleonShop && opts.Kecleon {
		if err := r.trap(img, sprites.KecleonSprite, origin); err != nil {
			return err
		}
	}
	switch t.Feature {
	case dungeon.FeaturePlayerSpawn, dungeon.FeatureEnemy:
		if !opts.Monsters {
			return nil
		}
		s, err := r.sprites.Monster(t.ID, c.Direction)
		if err != nil {
			return err
		}
		at := origin.Add(image.Pt(monsterAnchorX, monsterAnchorY)).Sub(s.Origin)
		paint(img, s.Image, at, nil)
	case dungeon.FeatureStairs:
		if opts.Stairs {
			return r.trap(img, sprites.StairsSprite, origin)
		}
	case dungeon.FeatureTrap:
		if opts.Traps {
			return r.trap(img, t.ID, origin)
		}
	case dungeon.FeatureBuriedItem:
		if opts.BuriedItems {
			return r.item(img, t.ID, origin, true)
		}
	case dungeon.FeatureItem:
		if opts.FloorItems {
			return r.item(img, t.ID, origin, false)
		}
	}
	return nil
}

func (r *Rasterizer) trap(img *image.RGBA, id int, origin image.Point) error {
	s, err := r.sprites.Trap(id)
	if err != nil {
		return err
	}
	paint(img, s.Image, origin, nil)
	return nil
}

var halfAlpha = image.NewUniform(color.Alpha{A: 0x80})

func (r *Rasterizer) item(img *image.RGBA, id int, origin image.Point, buried bool) error {
	s, err := r.sprites.Item(id)
	if err != nil {
		return err
	}
	var mask image.Image
	if buried {
		mask = halfAlpha
	}
	paint(img, s.Image, origin.Add(image.Pt(itemInset, itemInset)), mask)
	return nil
}

// paint composites src over dst with its top-left corner at at. A nil mask
// draws src at full opacity.
func paint(dst draw.Image, src image.Image, at image.Point, mask image.Image) {
	b := src.Bounds()
	rect := image.Rectangle{Min: at, Max: at.Add(b.Size())}
	draw.DrawMask(dst, rect, src, b.Min, mask, image.Point{}, draw.Over)
}

// EncodePNG writes img as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
