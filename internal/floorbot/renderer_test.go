package floorbot

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/skytemple/swablu/internal/dungeon"
	"github.com/skytemple/swablu/internal/gateway"
	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/options"
	"github.com/skytemple/swablu/internal/sprites"
	"github.com/skytemple/swablu/internal/tileset"
)

const sampleFloor = `<?xml version="1.0"?>
<Floor>
  <FloorLayout structure="MEDIUM_LARGE" tileset="3" room_density="6"
      floor_connectivity="15" extra_hallway_density="0" dead_ends="0"
      initial_enemy_density="4" item_density="5" buried_item_density="3" trap_density="4"
      kecleon_shop_chance="10" monster_house_chance="5" unused_chance="20" water_density="6">
    <TerrainSettings has_secondary_terrain="1" generate_imperfect_rooms="0"/>
  </FloorLayout>
  <MonsterList>
    <Monster id="1" level="1" weight="0"/>
    <Monster id="25" level="5" weight="4000"/>
    <Monster id="133" level="6" weight="10000"/>
  </MonsterList>
  <TrapList>
    <Trap name="MUD_TRAP" weight="5000"/>
    <Trap name="WONDER_TILE" weight="10000"/>
  </TrapList>
  <FloorItems>
    <Categories>
      <Category name="POKE" weight="3000"/>
      <Category name="ORBS" weight="10000"/>
    </Categories>
    <Items>
      <Item id="183" weight="3000"/>
      <Item id="320" weight="GUARANTEED"/>
      <Item id="301" weight="10000"/>
      <Item id="305" weight="GUARANTEED"/>
    </Items>
  </FloorItems>
  <BuriedItems>
    <Categories>
      <Category name="2" weight="10000"/>
    </Categories>
    <Items>
      <Item id="70" weight="10000"/>
    </Items>
  </BuriedItems>
</Floor>`

// testBundle draws every cell with chunk 0, a solid grey square.
func testBundle() *tileset.Bundle {
	var tile [tileset.TileDim * tileset.TileDim]uint8
	for i := range tile {
		tile[i] = 1
	}
	var pal [tileset.PaletteSize]color.RGBA
	pal[1] = color.RGBA{0x40, 0x40, 0x40, 0xFF}
	return &tileset.Bundle{
		DMA:  &tileset.DMA{},
		DPC:  &tileset.DPC{Chunks: []tileset.Chunk{{}}},
		DPCI: &tileset.DPCI{Tiles: [][tileset.TileDim * tileset.TileDim]uint8{tile}},
		DPL:  &tileset.DPL{Palettes: [][tileset.PaletteSize]color.RGBA{pal}},
		DPLA: &tileset.DPLA{},
	}
}

type fakeTilesets struct {
	bundle  *tileset.Bundle
	err     error
	delay   time.Duration
	panics  bool
	archive []byte
	id      int
}

func (f *fakeTilesets) Resolve(archive []byte, id int) (*tileset.Bundle, error) {
	f.archive, f.id = archive, id
	if f.panics {
		panic("tileset exploded")
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

type stubSprites struct{}

func (stubSprites) sprite() *sprites.Sprite {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	return &sprites.Sprite{Image: img}
}

func (s stubSprites) Monster(int, int) (*sprites.Sprite, error) { return s.sprite(), nil }
func (s stubSprites) Trap(int) (*sprites.Sprite, error)         { return s.sprite(), nil }
func (s stubSprites) Item(int) (*sprites.Sprite, error)         { return s.sprite(), nil }

func newTestRenderer(ts *fakeTilesets) *Renderer {
	return NewRenderer(mappa.DefaultCatalog(), ts, stubSprites{}, 5*time.Second)
}

func mustOptions(t *testing.T, text string) options.Options {
	t.Helper()
	opts, err := ParseOptions(text)
	require.NoError(t, err)
	return opts
}

// failingBuilder never produces a usable structure.
type failingBuilder struct{}

func (failingBuilder) Build(mappa.Layout, *rand.Rand) ([]dungeon.Tile, error) {
	return nil, dungeon.ErrStructure
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("tileset.dtef.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<DungeonTileset/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRenderProducesPNG(t *testing.T) {
	ts := &fakeTilesets{bundle: testBundle()}
	res, err := newTestRenderer(ts).Render(context.Background(), Request{
		Options: mustOptions(t, "+seed:42 +burieditems"),
		Floor:   []byte(sampleFloor),
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(42), res.Options.Seed)
	assert.True(t, res.Options.BuriedItems)
	assert.Equal(t, 3, res.TilesetID)
	assert.Empty(t, res.ArchiveDigest)
	assert.Nil(t, ts.archive)
	assert.Equal(t, 3, ts.id)

	img, err := png.Decode(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	assert.Equal(t, (dungeon.Width+10)*tileset.ChunkDim, img.Bounds().Dx())
	assert.Equal(t, (dungeon.Height+10)*tileset.ChunkDim, img.Bounds().Dy())
}

func TestRenderIsReproducibleForASeed(t *testing.T) {
	r := newTestRenderer(&fakeTilesets{bundle: testBundle()})
	req := Request{Options: mustOptions(t, "+seed:12345"), Floor: []byte(sampleFloor)}

	a, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	b, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.PNG, b.PNG)
}

func TestRenderWithArchive(t *testing.T) {
	archive := zipBytes(t)
	ts := &fakeTilesets{bundle: testBundle()}
	res, err := newTestRenderer(ts).Render(context.Background(), Request{
		Options: mustOptions(t, "+onlyfloor"),
		Floor:   []byte(sampleFloor),
		Archive: archive,
	})
	require.NoError(t, err)

	sum := blake2b.Sum256(archive)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.ArchiveDigest)
	assert.Equal(t, archive, ts.archive)
}

func TestRenderUserErrors(t *testing.T) {
	tests := []struct {
		name    string
		floor   string
		archive []byte
		tsErr   error
		title   string
		message string
	}{
		{name: "unparseable xml", floor: "<Floor>", title: "XML Error", message: "can't be parsed"},
		{
			name:    "invalid floor",
			floor:   strings.Replace(sampleFloor, `tileset="3"`, `tileset="500"`, 1),
			title:   "XML Error",
			message: "is invalid",
		},
		{name: "binary floor", floor: "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", title: "XML Error", message: "not a text file"},
		{name: "archive not a zip", archive: []byte("just some text"), title: "Invalid ZIP file", message: "not a ZIP file"},
		{
			name:    "unknown tileset",
			tsErr:   fmt.Errorf("%w: 3", tileset.ErrUnknownTileset),
			title:   "Invalid Tileset",
			message: "The tileset with ID 3 does not exist.",
		},
		{
			name:    "missing dtef member",
			tsErr:   &tileset.ArchiveError{Msg: "The DTEF ZIP you provided does not contain a tileset_2.png file.", Missing: "tileset_2.png"},
			title:   "DTEF Error",
			message: "tileset_2.png",
		},
		{
			name:    "nested archive",
			tsErr:   &tileset.ArchiveError{Msg: "The DTEF ZIP file may not contain sub-directories."},
			title:   "Invalid ZIP file",
			message: "sub-directories",
		},
		{
			name:    "bad dtef",
			tsErr:   fmt.Errorf("%w: palette mismatch", tileset.ErrInvalidDTEF),
			title:   "DTEF Error",
			message: "The DTEF ZIP you provided is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floor := tt.floor
			if floor == "" {
				floor = sampleFloor
			}
			ts := &fakeTilesets{bundle: testBundle(), err: tt.tsErr}
			_, err := newTestRenderer(ts).Render(context.Background(), Request{Options: options.Default(), Floor: []byte(floor), Archive: tt.archive})

			var ue *UserError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.title, ue.Title)
			assert.Contains(t, ue.Message, tt.message)
		})
	}
}

func TestRenderInternalErrors(t *testing.T) {
	broken := testBundle()
	broken.DPC.Chunks = nil

	tests := []struct {
		name string
		ts   *fakeTilesets
		want string
	}{
		{"missing chunk", &fakeTilesets{bundle: broken}, "chunk 0"},
		{"tileset failure", &fakeTilesets{err: errors.New("disk on fire")}, "disk on fire"},
		{"panic", &fakeTilesets{panics: true}, "tileset exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRenderer(tt.ts).Render(context.Background(), Request{Options: options.Default(), Floor: []byte(sampleFloor)})

			var ie *InternalError
			require.ErrorAs(t, err, &ie)
			assert.Contains(t, ie.Error(), tt.want)
			assert.Contains(t, ie.Trace(), "floorbot")
		})
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		text    string
		message string
	}{
		{"+fly", "Unknown option: +fly"},
		{"+seed:abc", "Unknown option: +seed:abc"},
		{"+nokecleon +bogus", "Unknown option: +bogus"},
	}
	for _, tt := range tests {
		_, err := ParseOptions(tt.text)
		var ue *UserError
		require.ErrorAs(t, err, &ue, tt.text)
		assert.Equal(t, "Invalid Option", ue.Title)
		assert.Equal(t, tt.message, ue.Message)
	}

	opts, err := ParseOptions("+seed:9 +nostairs")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), opts.Seed)
	assert.False(t, opts.Stairs)
}

func TestRenderGenerationFailure(t *testing.T) {
	ts := &fakeTilesets{bundle: testBundle()}
	r := newTestRenderer(ts)
	r.Builder = failingBuilder{}

	res, err := r.Render(context.Background(), Request{Options: mustOptions(t, "+seed:1"), Floor: []byte(sampleFloor)})
	assert.Nil(t, res)
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, dungeon.ErrGenerationFailed)
	assert.Equal(t, 3, ts.id)
}

func TestRenderTimeout(t *testing.T) {
	ts := &fakeTilesets{bundle: testBundle(), delay: 300 * time.Millisecond}
	r := NewRenderer(mappa.DefaultCatalog(), ts, stubSprites{}, 20*time.Millisecond)

	_, err := r.Render(context.Background(), Request{Options: options.Default(), Floor: []byte(sampleFloor)})
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSelectAttachments(t *testing.T) {
	att := func(names ...string) []gateway.Attachment {
		out := make([]gateway.Attachment, len(names))
		for i, n := range names {
			out[i] = gateway.Attachment{ID: gateway.Snowflake(i + 1), Filename: n}
		}
		return out
	}

	tests := []struct {
		name    string
		files   []gateway.Attachment
		floor   string
		archive string
		message string
	}{
		{name: "xml only", files: att("floor.xml"), floor: "floor.xml"},
		{name: "xml and zip", files: att("tiles.ZIP", "Floor.XML"), floor: "Floor.XML", archive: "tiles.ZIP"},
		{name: "no xml", files: att("tiles.zip"), message: "did not attach a floor XML"},
		{name: "two xml", files: att("a.xml", "b.xml"), message: "multiple XML"},
		{name: "two zip", files: att("a.xml", "a.zip", "b.zip"), message: "multiple ZIP"},
		{name: "other file", files: att("a.xml", "notes.txt"), message: "Attach only one XML file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectAttachments(tt.files)
			if tt.message != "" {
				var ue *UserError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, "Invalid attachments.", ue.Title)
				assert.Contains(t, ue.Message, tt.message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.floor, sel.floor.Filename)
			if tt.archive == "" {
				assert.Nil(t, sel.archive)
			} else {
				require.NotNil(t, sel.archive)
				assert.Equal(t, tt.archive, sel.archive.Filename)
			}
		})
	}
}

func TestErrorEmbed(t *testing.T) {
	e := errorEmbed(&UserError{Title: "XML Error", Message: "bad"})
	assert.Equal(t, gateway.Embed{Title: "XML Error", Description: "bad", Color: colorUserError}, e)

	e = errorEmbed(errors.New("boom"))
	assert.Equal(t, "Internal Error", e.Title)
	assert.Equal(t, colorInternalError, e.Color)
	assert.True(t, strings.HasPrefix(e.Description, "Oh oh! There was an internal error while trying to process your message:\n\n```\nboom\n"))
	assert.True(t, strings.HasSuffix(e.Description, "\n```"))

	e = errorEmbed(internal(errors.New(strings.Repeat("x", 5000))))
	assert.Less(t, len(e.Description), 4096)
}

func TestDigest(t *testing.T) {
	assert.Empty(t, Digest(nil))
	assert.Len(t, Digest([]byte{}), 64)
	assert.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}
