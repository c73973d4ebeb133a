// Command floorview generates a floor from a floor XML and shows the tile
// grid in the terminal, with the preview layers toggled by key.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/options"
)

func main() {
	floorFile := flag.String("xml", "", "Path to the floor XML file (required)")
	opts := flag.String("options", "", "Option string, e.g. \"+nopatches +seed:12345\"")
	emoji := flag.Bool("emoji", false, "Draw with emoji glyphs")
	flag.Parse()

	if *floorFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*floorFile)
	if err != nil {
		fatalf("Error reading floor: %v", err)
	}
	catalog := mappa.DefaultCatalog()
	floor, err := mappa.ParseFloorXML(data, catalog)
	if err != nil {
		fatalf("Error parsing floor: %v", err)
	}
	o, err := options.Parse(*opts)
	if err != nil {
		fatalf("Error: %v", err)
	}

	gen := dungeon.NewGenerator(catalog, o.Patches)
	generate := func(seed uint32) ([]dungeon.ResolvedTile, error) {
		return gen.Generate(context.Background(), floor, rand.New(rand.NewSource(int64(seed))))
	}
	tiles, err := generate(o.Seed)
	if err != nil {
		fatalf("Error generating floor: %v", err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fatalf("Error creating screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		fatalf("Error initializing screen: %v", err)
	}
	defer screen.Fini()

	v := newView(tiles, o, *emoji)
	for {
		screen.Clear()
		w, _ := screen.Size()
		v.draw(screen, w)
		screen.Show()

		switch ev := screen.PollEvent().(type) {
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
				return
			}
			if ev.Rune() == 'n' {
				seed := rand.Uint32()
				if next, err := generate(seed); err == nil {
					v.tiles = next
					v.opts.Seed = seed
				}
				continue
			}
			v.toggle(ev.Rune())
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
