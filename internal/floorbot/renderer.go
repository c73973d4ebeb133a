// Package floorbot turns floor render requests into PNG previews and wires
// the pipeline to the chat gateway.
package floorbot

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/options"
	"github.com/skytemple/swablu/internal/render"
	"github.com/skytemple/swablu/internal/tileset"
)

// ImageName is the file name of a rendered preview.
const ImageName = "floor.png"

// DefaultTimeout bounds a single render.
const DefaultTimeout = 60 * time.Second

// Tilesets resolves the tileset a floor is drawn with.
type Tilesets interface {
	Resolve(archive []byte, id int) (*tileset.Bundle, error)
}

// Request is one render request: the parsed options and the downloaded
// attachments. Archive is nil when no ZIP was attached.
type Request struct {
	Options options.Options
	Floor   []byte
	Archive []byte
}

// Result is a rendered preview.
type Result struct {
	PNG       []byte
	Options   options.Options
	TilesetID int
	// ArchiveDigest is the hex BLAKE2b-256 of the archive, or empty.
	ArchiveDigest string
}

// Renderer runs the parse, generate and draw pipeline.
type Renderer struct {
	// Builder lays out the floor structure. NewRenderer sets RoomBuilder.
	Builder dungeon.Builder

	catalog  *mappa.Catalog
	tilesets Tilesets
	raster   *render.Rasterizer
	timeout  time.Duration
}

// NewRenderer returns a Renderer. A zero timeout means DefaultTimeout.
func NewRenderer(catalog *mappa.Catalog, tilesets Tilesets, sprites render.SpriteSource, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Renderer{
		Builder:  dungeon.RoomBuilder{},
		catalog:  catalog,
		tilesets: tilesets,
		raster:   render.NewRasterizer(sprites),
		timeout:  timeout,
	}
}

type outcome struct {
	res *Result
	err error
}

// Render produces the preview for req. Every error is either a *UserError
// or an *InternalError; nothing is returned on failure.
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: internal(fmt.Errorf("panic: %v", p))}
			}
		}()
		res, err := r.render(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, internal(fmt.Errorf("render aborted after %s: %w", r.timeout, ctx.Err()))
	}
}

// ParseOptions parses the text of a request. An invalid option is a
// *UserError naming the offending token.
func ParseOptions(text string) (options.Options, error) {
	opts, err := options.Parse(text)
	if err != nil {
		return opts, &UserError{Title: "Invalid Option", Message: err.Error()}
	}
	return opts, nil
}

func (r *Renderer) render(ctx context.Context, req Request) (*Result, error) {
	opts := req.Options

	if err := checkContent(req.Floor, req.Archive); err != nil {
		return nil, err
	}

	floor, err := mappa.ParseFloorXML(req.Floor, r.catalog)
	switch {
	case errors.Is(err, mappa.ErrMalformed):
		return nil, userErrorf("XML Error", "The floor XML you provided can't be parsed: %v", err)
	case errors.Is(err, mappa.ErrInvalid):
		return nil, userErrorf("XML Error", "The floor XML you provided is invalid: %v", err)
	case err != nil:
		return nil, internal(err)
	}

	bundle, err := r.resolveTileset(req.Archive, floor.Layout.TilesetID)
	if err != nil {
		return nil, err
	}

	gen := dungeon.NewGenerator(r.catalog, opts.Patches)
	gen.Builder = r.Builder
	tiles, err := gen.Generate(ctx, floor, rand.New(rand.NewSource(int64(opts.Seed))))
	if err != nil {
		return nil, internal(err)
	}

	img, err := r.raster.Render(opts, render.FromResolved(tiles), bundle)
	if err != nil {
		return nil, internal(err)
	}

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img); err != nil {
		return nil, internal(err)
	}

	return &Result{
		PNG:           buf.Bytes(),
		Options:       opts,
		TilesetID:     floor.Layout.TilesetID,
		ArchiveDigest: Digest(req.Archive),
	}, nil
}

func (r *Renderer) resolveTileset(archive []byte, id int) (*tileset.Bundle, error) {
	bundle, err := r.tilesets.Resolve(archive, id)
	if err == nil {
		return bundle, nil
	}

	var ae *tileset.ArchiveError
	switch {
	case errors.As(err, &ae) && ae.Missing != "":
		return nil, &UserError{Title: "DTEF Error", Message: ae.Msg}
	case errors.As(err, &ae):
		return nil, &UserError{Title: "Invalid ZIP file", Message: ae.Msg}
	case errors.Is(err, tileset.ErrInvalidDTEF):
		return nil, userErrorf("DTEF Error", "The DTEF ZIP you provided is invalid: %v", err)
	case errors.Is(err, tileset.ErrUnknownTileset):
		return nil, userErrorf("Invalid Tileset", "The tileset with ID %d does not exist.", id)
	default:
		return nil, internal(err)
	}
}

// Digest returns the hex BLAKE2b-256 of data, or "" for nil data.
func Digest(data []byte) string {
	if data == nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
