// Command floorgen renders a floor XML to a PNG preview without the chat
// gateway. With -export it instead writes the resolved tileset as a
// built-in tileset directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skytemple/swablu/internal/floorbot"
	"github.com/skytemple/swablu/internal/logger"
	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/sprites"
	"github.com/skytemple/swablu/internal/tileset"
)

func main() {
	floorFile := flag.String("xml", "", "Path to the floor XML file (required)")
	archiveFile := flag.String("zip", "", "Path to a DTEF tileset ZIP (optional)")
	assets := flag.String("assets", "assets", "Path to the asset root")
	opts := flag.String("options", "", "Option string, e.g. \"+onlyfloor +seed:12345\"")
	output := flag.String("output", floorbot.ImageName, "Output PNG file")
	export := flag.String("export", "", "Write the resolved tileset to this directory instead of rendering")
	timeout := flag.Duration("timeout", floorbot.DefaultTimeout, "Render timeout")
	flag.Parse()

	logConfig := logger.DefaultConfig()
	logConfig.Level = "WARNING"
	if err := logger.Initialize(logConfig); err != nil {
		fatalf("Failed to initialize logging: %v", err)
	}

	if *floorFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	floor, err := os.ReadFile(*floorFile)
	if err != nil {
		fatalf("Error reading floor: %v", err)
	}
	var archive []byte
	if *archiveFile != "" {
		if archive, err = os.ReadFile(*archiveFile); err != nil {
			fatalf("Error reading tileset archive: %v", err)
		}
	}

	library := tileset.NewLibrary(*assets, tileset.BinaryCodec{})

	if *export != "" {
		if err := exportTileset(library, floor, archive, *export); err != nil {
			fatalf("Error exporting tileset: %v", err)
		}
		fmt.Printf("Tileset written to %s\n", *export)
		return
	}

	atlas, err := sprites.Load(*assets)
	if err != nil {
		fatalf("Error loading sprites: %v", err)
	}

	o, err := floorbot.ParseOptions(*opts)
	if err != nil {
		report(err)
		os.Exit(1)
	}
	renderer := floorbot.NewRenderer(mappa.DefaultCatalog(), library, atlas, *timeout)
	res, err := renderer.Render(context.Background(), floorbot.Request{Options: o, Floor: floor, Archive: archive})
	if err != nil {
		report(err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, res.PNG, 0o644); err != nil {
		fatalf("Error writing %s: %v", *output, err)
	}
	fmt.Printf("Rendered %s (seed %d, tileset %d)\n", *output, res.Options.Seed, res.TilesetID)
}

// exportTileset resolves the floor's tileset and writes its binary parts.
func exportTileset(library *tileset.Library, floorXML, archive []byte, dir string) error {
	floor, err := mappa.ParseFloorXML(floorXML, mappa.DefaultCatalog())
	if err != nil {
		return err
	}
	bundle, err := library.Resolve(archive, floor.Layout.TilesetID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	parts := tileset.BinaryCodec{}.Encode(bundle)
	for ext, data := range map[string][]byte{
		"dma": parts.DMA, "dpc": parts.DPC, "dpci": parts.DPCI, "dpl": parts.DPL, "dpla": parts.DPLA,
	} {
		if err := os.WriteFile(filepath.Join(dir, "tileset."+ext), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func report(err error) {
	var ue *floorbot.UserError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "%s\n%s\n", ue.Title, ue.Message)
		return
	}
	var ie *floorbot.InternalError
	if errors.As(err, &ie) {
		fmt.Fprintf(os.Stderr, "Internal Error\n%s\n", ie.Trace())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
