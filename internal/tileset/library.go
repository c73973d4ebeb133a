package tileset

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnknownTileset is returned for a built-in id without a directory.
	ErrUnknownTileset = errors.New("unknown tileset")
	// ErrInvalidArchive is the base of every ArchiveError.
	ErrInvalidArchive = errors.New("invalid tileset archive")
)

// ArchiveError describes a structural problem with an uploaded archive.
// Its message is written for the uploader.
type ArchiveError struct {
	Msg string
	// Missing names the absent DTEF member, if that was the problem.
	Missing string
}

func (e *ArchiveError) Error() string { return e.Msg }
func (e *ArchiveError) Unwrap() error { return ErrInvalidArchive }

// maxMemberSize bounds the uncompressed size of one archive member.
const maxMemberSize = 8 << 20

// File names inside the asset root.
const (
	baseName    = "base"
	tilesetsDir = "tilesets"
	tilesetStem = "tileset"
)

var partExts = []string{"dma", "dpc", "dpci", "dpl", "dpla"}

// cacheEntry holds one loaded bundle. Failed loads are not kept, so the
// next caller tries again.
type cacheEntry struct {
	mu     sync.Mutex
	bundle *Bundle
}

func (e *cacheEntry) get(load func() (*Bundle, error)) (*Bundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bundle != nil {
		return e.bundle, nil
	}
	b, err := load()
	if err != nil {
		return nil, err
	}
	e.bundle = b
	return b, nil
}

// Library resolves tilesets below an asset root. Built-in tilesets and the
// base bundle are loaded on first success and shared read-only; archive
// tilesets are decoded per call.
type Library struct {
	root  string
	codec Codec

	base cacheEntry

	mu    sync.Mutex
	cache map[int]*cacheEntry
}

// NewLibrary returns a Library over root using codec.
func NewLibrary(root string, codec Codec) *Library {
	return &Library{
		root:  root,
		codec: codec,
		cache: make(map[int]*cacheEntry),
	}
}

// Resolve returns the archive's tileset when archive is non-nil and the
// built-in tileset id otherwise.
func (l *Library) Resolve(archive []byte, id int) (*Bundle, error) {
	if archive != nil {
		files, err := ReadArchive(archive)
		if err != nil {
			return nil, err
		}
		base, err := l.Base()
		if err != nil {
			return nil, err
		}
		return l.codec.ImportDTEF(base, files)
	}
	return l.Builtin(id)
}

// Base returns the default bundle that archive imports start from.
func (l *Library) Base() (*Bundle, error) {
	return l.base.get(func() (*Bundle, error) {
		return l.load(l.root, baseName)
	})
}

// Builtin returns the bundled tileset id.
func (l *Library) Builtin(id int) (*Bundle, error) {
	dir := filepath.Join(l.root, tilesetsDir, strconv.Itoa(id))
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTileset, id)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTileset, id)
	}

	l.mu.Lock()
	e, ok := l.cache[id]
	if !ok {
		e = &cacheEntry{}
		l.cache[id] = e
	}
	l.mu.Unlock()

	return e.get(func() (*Bundle, error) {
		return l.load(dir, tilesetStem)
	})
}

func (l *Library) load(dir, stem string) (*Bundle, error) {
	raw := make([][]byte, len(partExts))
	for i, ext := range partExts {
		path := filepath.Join(dir, stem+"."+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		raw[i] = data
	}
	b, err := l.codec.Decode(Parts{DMA: raw[0], DPC: raw[1], DPCI: raw[2], DPL: raw[3], DPLA: raw[4]})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Join(dir, stem), err)
	}
	return b, nil
}

// ReadArchive checks that data is a flat ZIP holding exactly the DTEF
// members and returns their contents.
func ReadArchive(data []byte) (DTEFFiles, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return DTEFFiles{}, &ArchiveError{Msg: fmt.Sprintf("The ZIP file you provided can't be read: %v", err)}
	}

	members := make(map[string][]byte, len(DTEFMembers))
	for _, f := range zr.File {
		if strings.ContainsAny(f.Name, `/\`) {
			return DTEFFiles{}, &ArchiveError{Msg: "The DTEF ZIP file may not contain sub-directories."}
		}
		if !isDTEFMember(f.Name) {
			return DTEFFiles{}, &ArchiveError{Msg: fmt.Sprintf("The DTEF ZIP file contains an unexpected file: %s", f.Name)}
		}
		if _, dup := members[f.Name]; dup {
			return DTEFFiles{}, &ArchiveError{Msg: fmt.Sprintf("The DTEF ZIP file contains %s twice.", f.Name)}
		}
		content, err := readMember(f)
		if err != nil {
			return DTEFFiles{}, &ArchiveError{Msg: fmt.Sprintf("Failed to read %s from the ZIP file: %v", f.Name, err)}
		}
		members[f.Name] = content
	}

	for _, name := range DTEFMembers {
		if _, ok := members[name]; !ok {
			return DTEFFiles{}, &ArchiveError{
				Msg:     fmt.Sprintf("The DTEF ZIP you provided does not contain a %s file.", name),
				Missing: name,
			}
		}
	}
	for _, name := range DTEFMembers[1:] {
		if mt := mimetype.Detect(members[name]); !mt.Is("image/png") {
			return DTEFFiles{}, &ArchiveError{Msg: fmt.Sprintf("%s is not a PNG image (found %s).", name, mt.String())}
		}
	}

	return DTEFFiles{
		XML:        members[DTEFXMLName],
		Variations: [DMAVariations][]byte{members[DTEFVar0], members[DTEFVar1], members[DTEFVar2]},
	}, nil
}

func isDTEFMember(name string) bool {
	for _, m := range DTEFMembers {
		if name == m {
			return true
		}
	}
	return false
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxMemberSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMemberSize {
		return nil, fmt.Errorf("larger than %d bytes", maxMemberSize)
	}
	return data, nil
}
