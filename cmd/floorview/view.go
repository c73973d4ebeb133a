package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/options"
)

// canvas is the part of tcell.Screen the view draws on.
type canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
}

// glyphSet maps tile contents to terminal glyphs.
type glyphSet struct {
	wall, secondary, floor, shop string
	stairs, player, enemy, item  string
	buried, trap                 string
}

var asciiGlyphs = glyphSet{
	wall: "#", secondary: "~", floor: ".", shop: "$",
	stairs: ">", player: "@", enemy: "M", item: "*",
	buried: "%", trap: "^",
}

var emojiGlyphs = glyphSet{
	wall: "🧱", secondary: "🌊", floor: "·", shop: "🛒",
	stairs: "🪜", player: "🧑", enemy: "👾", item: "💎",
	buried: "🪙", trap: "💥",
}

// view holds one generated floor and the layers being shown.
type view struct {
	tiles  []dungeon.ResolvedTile
	opts   options.Options
	glyphs glyphSet
	// cellWidth is the number of columns per tile.
	cellWidth int
}

func newView(tiles []dungeon.ResolvedTile, opts options.Options, emoji bool) *view {
	v := &view{tiles: tiles, opts: opts, glyphs: asciiGlyphs, cellWidth: 1}
	if emoji {
		v.glyphs = emojiGlyphs
		v.cellWidth = 2
	}
	return v
}

var (
	styleWall      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleSecondary = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleFloor     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleHouse     = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleShop      = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleSpawn     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleStatus    = tcell.StyleDefault.Reverse(true)
)

// glyph returns what to show for t, honouring the enabled layers in the
// same order the image renderer stacks them.
func (v *view) glyph(t dungeon.ResolvedTile) (string, tcell.Style) {
	g := v.glyphs
	switch {
	case t.Feature == dungeon.FeatureItem && v.opts.FloorItems:
		return g.item, styleSpawn
	case t.Feature == dungeon.FeatureBuriedItem && v.opts.BuriedItems:
		return g.buried, styleSpawn
	case t.Feature == dungeon.FeatureTrap && v.opts.Traps:
		return g.trap, styleSpawn
	case t.Feature == dungeon.FeatureStairs && v.opts.Stairs:
		return g.stairs, styleSpawn
	case t.Feature == dungeon.FeaturePlayerSpawn && v.opts.Monsters:
		return g.player, styleSpawn
	case t.Feature == dungeon.FeatureEnemy && v.opts.Monsters:
		return g.enemy, styleSpawn
	case t.Room == dungeon.RoomKecleonShop && v.opts.Kecleon:
		return g.shop, styleShop
	}

	switch t.Terrain {
	case dungeon.TerrainWall:
		return g.wall, styleWall
	case dungeon.TerrainSecondary:
		return g.secondary, styleSecondary
	}
	if t.Room == dungeon.RoomMonsterHouse {
		return g.floor, styleHouse
	}
	return g.floor, styleFloor
}

// draw paints the grid and the status line below it.
func (v *view) draw(c canvas, width int) {
	for y := 0; y < dungeon.Height; y++ {
		for x := 0; x < dungeon.Width; x++ {
			s, style := v.glyph(v.tiles[dungeon.Index(x, y)])
			v.put(c, x*v.cellWidth, y, s, style)
		}
	}
	drawText(c, 0, dungeon.Height+1, width, v.status(), styleStatus)
}

// put draws one glyph and pads it to the cell width.
func (v *view) put(c canvas, x, y int, glyph string, style tcell.Style) {
	runes := []rune(glyph)
	c.SetContent(x, y, runes[0], runes[1:], style)
	for w := runewidth.StringWidth(glyph); w < v.cellWidth; w++ {
		c.SetContent(x+w, y, ' ', nil, style)
	}
}

func (v *view) status() string {
	flag := func(key, name string, on bool) string {
		state := "off"
		if on {
			state = "on"
		}
		return fmt.Sprintf("[%s]%s:%s", key, name, state)
	}
	parts := []string{
		fmt.Sprintf("seed %d", v.opts.Seed),
		flag("s", "tairs", v.opts.Stairs),
		flag("m", "onsters", v.opts.Monsters),
		flag("i", "tems", v.opts.FloorItems),
		flag("t", "raps", v.opts.Traps),
		flag("k", "ecleon", v.opts.Kecleon),
		flag("b", "uried", v.opts.BuriedItems),
		"[n]ew seed [q]uit",
	}
	return strings.Join(parts, "  ")
}

// toggle flips the layer bound to key and reports whether it knew the key.
func (v *view) toggle(key rune) bool {
	switch key {
	case 's':
		v.opts.Stairs = !v.opts.Stairs
	case 'm':
		v.opts.Monsters = !v.opts.Monsters
	case 'i':
		v.opts.FloorItems = !v.opts.FloorItems
	case 't':
		v.opts.Traps = !v.opts.Traps
	case 'k':
		v.opts.Kecleon = !v.opts.Kecleon
	case 'b':
		v.opts.BuriedItems = !v.opts.BuriedItems
	default:
		return false
	}
	return true
}

// drawText writes s at (x, y), cut to width display columns.
func drawText(c canvas, x, y, width int, s string, style tcell.Style) {
	s = runewidth.Truncate(s, width-x, "…")
	col := x
	for _, r := range s {
		c.SetContent(col, y, r, nil, style)
		col += runewidth.RuneWidth(r)
	}
	for ; col < width; col++ {
		c.SetContent(col, y, ' ', nil, style)
	}
}
