package tileset

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryCodecRoundTrip(t *testing.T) {
	in := testBundle()
	codec := BinaryCodec{}

	out, err := codec.Decode(codec.Encode(in))
	require.NoError(t, err)

	assert.Equal(t, in.DMA.Chunks, out.DMA.Chunks)
	assert.Equal(t, in.DPC.Chunks, out.DPC.Chunks)
	assert.Equal(t, in.DPCI.Tiles, out.DPCI.Tiles)
	assert.Equal(t, in.DPL.Palettes, out.DPL.Palettes)
	assert.Equal(t, in.DPLA.Slots, out.DPLA.Slots)
}

func TestDecodeRejectsBadLengths(t *testing.T) {
	_, err := DecodeDMA(make([]byte, 10))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDPC(make([]byte, chunkBytes+1))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDPCI(make([]byte, TileBytes-1))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDPL(nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDPLA([]byte{1, 0, 4, 0, 2, 0, 1, 2})
	assert.ErrorIs(t, err, ErrCorrupt, "truncated frames")

	_, err = DecodeDPLA([]byte{0, 0, 9})
	assert.ErrorIs(t, err, ErrCorrupt, "trailing bytes")
}

func TestDPCMappingBits(t *testing.T) {
	data := []byte{0x05, 0xA4} // tile 0x005 | flipX 0x400 | palette 0xA
	data = append(data, make([]byte, chunkBytes-2)...)
	dpc, err := DecodeDPC(data)
	require.NoError(t, err)
	m := dpc.Chunks[0][0]
	assert.Equal(t, TileMapping{Index: 0x005, FlipX: true, Palette: 0xA}, m)
}

func TestDPCINibbleOrder(t *testing.T) {
	data := make([]byte, TileBytes)
	data[0] = 0x21
	dpci, err := DecodeDPCI(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), dpci.Tiles[0][0])
	assert.Equal(t, uint8(2), dpci.Tiles[0][1])
}

func TestBlobMasks(t *testing.T) {
	masks := blobMasks
	assert.Len(t, masks, 47)
	assert.Equal(t, uint8(0x00), masks[0])
	assert.Equal(t, uint8(0xFF), masks[len(masks)-1])
	for i := 1; i < len(masks); i++ {
		assert.Less(t, masks[i-1], masks[i])
	}

	assert.Equal(t, uint8(0x00), ReduceMask(NeighbourSE))
	assert.Equal(t, NeighbourS|NeighbourE|NeighbourSE, ReduceMask(NeighbourS|NeighbourE|NeighbourSE))
	assert.Equal(t, NeighbourN|NeighbourE, ReduceMask(NeighbourN|NeighbourE|NeighbourNW))
}

func TestImportDTEF(t *testing.T) {
	files := dtefFiles(t)
	base := testBundle()
	in := DTEFFiles{
		XML:        files[DTEFXMLName],
		Variations: [DMAVariations][]byte{files[DTEFVar0], files[DTEFVar1], files[DTEFVar2]},
	}

	out, err := BinaryCodec{}.ImportDTEF(base, in)
	require.NoError(t, err)

	// The base bundle is untouched.
	assert.Len(t, base.DPC.Chunks, 2)

	require.Len(t, out.DPL.Palettes, 2)
	assert.Equal(t, uint8(0x80), out.DPL.Palettes[1][3].B)

	require.Len(t, out.DPLA.Slots, 1)
	assert.Equal(t, 8, out.DPLA.Slots[0].Duration)
	assert.Equal(t, uint8(0xFF), out.DPLA.Slots[0].Frames[0].R)

	// Each slot is a solid colour; the chunk of floor, mask 0xFF, variation
	// 0 sits at block 2, slot 46 (column 4, row 7).
	chunk := out.DMA.Get(DMAFloor, 0xFF)[0]
	ch, err := out.Chunk(int(chunk))
	require.NoError(t, err)
	cx, cy := 2*dtefBlockCols+4, 7
	want := uint8((cx*3+cy)%15 + 1)
	tile, err := out.Tile(ch[0].Index)
	require.NoError(t, err)
	assert.Equal(t, want, tile[0])
	assert.Equal(t, 0, ch[0].Palette)

	// Non-canonical masks reuse their reduced mask.
	assert.Equal(t, out.DMA.Get(DMAWall, 0x00), out.DMA.Get(DMAWall, NeighbourSE|NeighbourNW))
	assert.Equal(t, out.DMA.Get(DMAWater, NeighbourN|NeighbourE), out.DMA.Get(DMAWater, NeighbourN|NeighbourE|NeighbourSW))
}

func TestImportDTEFKeepsBaseAnimationWithoutXMLSettings(t *testing.T) {
	files := dtefFiles(t)
	in := DTEFFiles{
		XML:        []byte(`<DungeonTileset dimensions="24"/>`),
		Variations: [DMAVariations][]byte{files[DTEFVar0], files[DTEFVar1], files[DTEFVar2]},
	}
	out, err := BinaryCodec{}.ImportDTEF(testBundle(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, out.DPLA.Slots[0].Duration)
}

func TestImportDTEFErrors(t *testing.T) {
	files := dtefFiles(t)
	good := DTEFFiles{
		XML:        files[DTEFXMLName],
		Variations: [DMAVariations][]byte{files[DTEFVar0], files[DTEFVar1], files[DTEFVar2]},
	}

	tests := []struct {
		name   string
		mutate func(*DTEFFiles)
	}{
		{"broken xml", func(f *DTEFFiles) { f.XML = []byte("<DungeonTileset") }},
		{"wrong dimensions", func(f *DTEFFiles) { f.XML = []byte(`<DungeonTileset dimensions="16"/>`) }},
		{"not a png", func(f *DTEFFiles) { f.Variations[1] = []byte("nope") }},
		{"bad animation colour", func(f *DTEFFiles) {
			f.XML = []byte(`<DungeonTileset dimensions="24"><AnimationSettings><A duration="1"><Color>#XYZ</Color></A></AnimationSettings></DungeonTileset>`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := good
			tt.mutate(&in)
			_, err := BinaryCodec{}.ImportDTEF(testBundle(), in)
			assert.ErrorIs(t, err, ErrInvalidDTEF)
		})
	}
}

func TestReadArchive(t *testing.T) {
	files := dtefFiles(t)
	data := zipOf(t, DTEFMembers, files)

	got, err := ReadArchive(data)
	require.NoError(t, err)
	assert.Equal(t, files[DTEFXMLName], got.XML)
	assert.Equal(t, files[DTEFVar2], got.Variations[2])
}

func TestReadArchiveErrors(t *testing.T) {
	files := dtefFiles(t)
	files["sub/tileset_0.png"] = files[DTEFVar0]
	files["readme.txt"] = []byte("hi")
	files["fake.png"] = []byte("not a png")

	tests := []struct {
		name    string
		data    func() []byte
		message string
	}{
		{"not a zip", func() []byte { return []byte("PK but not really") }, "can't be read"},
		{"nested", func() []byte {
			return zipOf(t, []string{DTEFXMLName, "sub/tileset_0.png", DTEFVar1, DTEFVar2}, files)
		}, "sub-directories"},
		{"missing", func() []byte {
			return zipOf(t, []string{DTEFXMLName, DTEFVar0, DTEFVar1}, files)
		}, "does not contain a tileset_2.png file"},
		{"extra", func() []byte {
			return zipOf(t, append(append([]string{}, DTEFMembers...), "readme.txt"), files)
		}, "unexpected file: readme.txt"},
		{"png that is not a png", func() []byte {
			f := map[string][]byte{}
			for k, v := range files {
				f[k] = v
			}
			f[DTEFVar1] = files["fake.png"]
			return zipOf(t, DTEFMembers, f)
		}, "tileset_1.png is not a PNG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadArchive(tt.data())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArchive)
			var ae *ArchiveError
			require.True(t, errors.As(err, &ae))
			assert.Contains(t, ae.Msg, tt.message)
		})
	}
}

func TestLibraryBuiltin(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, filepath.Join(root, "tilesets", "7"), "tileset", testBundle())

	lib := NewLibrary(root, BinaryCodec{})

	a, err := lib.Resolve(nil, 7)
	require.NoError(t, err)
	b, err := lib.Resolve(nil, 7)
	require.NoError(t, err)
	assert.Same(t, a, b, "built-in tilesets are cached")

	_, err = lib.Resolve(nil, 8)
	assert.ErrorIs(t, err, ErrUnknownTileset)
	_, err = lib.Resolve(nil, -1)
	assert.ErrorIs(t, err, ErrUnknownTileset)
}

func TestLibraryBuiltinConcurrentLoad(t *testing.T) {
	root := t.TempDir()
	for id := 0; id < 3; id++ {
		writeBundle(t, filepath.Join(root, "tilesets", strconv.Itoa(id)), "tileset", testBundle())
	}
	lib := NewLibrary(root, BinaryCodec{})

	var wg sync.WaitGroup
	results := make([]*Bundle, 30)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := lib.Builtin(i % 3)
			if err == nil {
				results[i] = b
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NotNil(t, results[i])
		assert.Same(t, results[i%3], results[i])
	}
}

func TestLibraryResolveArchive(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "base", testBundle())
	lib := NewLibrary(root, BinaryCodec{})

	archive := zipOf(t, DTEFMembers, dtefFiles(t))
	a, err := lib.Resolve(archive, 999)
	require.NoError(t, err, "the tileset id is ignored for archives")
	b, err := lib.Resolve(archive, 999)
	require.NoError(t, err)
	assert.NotSame(t, a, b, "archive tilesets are per request")
	assert.Equal(t, a.DMA.Chunks, b.DMA.Chunks)

	base, err := lib.Base()
	require.NoError(t, err)
	assert.Len(t, base.DPC.Chunks, 2, "importing must not modify the base bundle")
}

func TestLibraryMissingBase(t *testing.T) {
	lib := NewLibrary(t.TempDir(), BinaryCodec{})
	_, err := lib.Resolve(zipOf(t, DTEFMembers, dtefFiles(t)), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidArchive)
}

func TestLibraryRetriesFailedLoad(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tilesets", "4")
	require.NoError(t, os.MkdirAll(dir, 0755))
	lib := NewLibrary(root, BinaryCodec{})

	_, err := lib.Builtin(4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownTileset)
	_, err = lib.Base()
	require.Error(t, err)

	writeBundle(t, dir, "tileset", testBundle())
	writeBundle(t, root, "base", testBundle())

	a, err := lib.Builtin(4)
	require.NoError(t, err, "a failed load is not cached")
	b, err := lib.Builtin(4)
	require.NoError(t, err)
	assert.Same(t, a, b)
	_, err = lib.Base()
	assert.NoError(t, err)
}
