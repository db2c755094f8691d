// Copyright (c) pacozip contributors
// Licensed under the MIT license

package pacozip

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pacodinev/pacozip/codec"
	"github.com/pacodinev/pacozip/internal/allocator"
	"github.com/pacodinev/pacozip/internal/archivestore"
	"github.com/pacodinev/pacozip/internal/crc32x"
	"github.com/pacodinev/pacozip/internal/entrycache"
)

// headerCacheSize bounds the in-memory entry-header cache; archives with
// more live entries than this just see a lower hit rate, not a correctness
// problem, since the cache is never the source of truth.
const headerCacheSize = 1024

// Strategy names a codec and its parameter, the unit addFile chooses
// between "store compressed" and "store as-is" with.
type Strategy struct {
	CodecID    codec.ID
	CodecParam uint8
}

// defaultStrategy is the initial value GetDefaultStrategy reports for a
// newly created or opened Archive; LZW with a mid-sized dictionary is a
// reasonable default for mixed content.
var defaultStrategy = Strategy{CodecID: codec.LZW, CodecParam: 5}

// EntryInfo is the facade's read-only view of one live entry.
type EntryInfo struct {
	Name        string
	Kind        EntryKind
	PayloadSize int64
	CodecID     codec.ID
	CodecParam  uint8
}

// Archive is a single open PacoZIP container. It is not safe for
// concurrent use: the format's concurrency model is single-threaded, and
// callers owning one *Archive must serialize their own calls into it.
type Archive struct {
	store    *archivestore.Store
	mgr      *entryManager
	strategy Strategy
	cache    *entrycache.Cache
}

// Create makes a new, empty archive at path, truncating any existing
// file there.
func Create(path string) (*Archive, error) {
	store, err := archivestore.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, ErrIO)
	}
	return CreateMedium(store)
}

// CreateMedium makes a new, empty archive over an already-open medium,
// writing the 20-byte prefix with first_entry_offset = 0.
func CreateMedium(store *archivestore.Store) (*Archive, error) {
	cache := entrycache.New(headerCacheSize)
	mgr := newEntryManager(store, archiveHeader{version: HeaderVersion, firstEntryOffset: 0}, cache)
	if err := mgr.writeArchiveHeader(); err != nil {
		store.Close()
		return nil, err
	}
	return &Archive{store: store, mgr: mgr, strategy: defaultStrategy, cache: cache}, nil
}

// Open opens an existing archive at path, validating its magic and
// header version.
func Open(path string) (*Archive, error) {
	store, err := archivestore.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, ErrIO)
	}
	return OpenMedium(store)
}

// OpenMedium opens an existing archive over an already-open medium.
func OpenMedium(store *archivestore.Store) (*Archive, error) {
	cache := entrycache.New(headerCacheSize)
	mgr := newEntryManager(store, archiveHeader{}, cache)
	if err := mgr.readArchiveHeader(); err != nil {
		store.Close()
		return nil, err
	}
	return &Archive{store: store, mgr: mgr, strategy: defaultStrategy, cache: cache}, nil
}

// Close releases the underlying container if the Archive owns it.
func (a *Archive) Close() error {
	return a.store.Close()
}

// SetDefaultStrategy changes the strategy GetDefaultStrategy reports.
// AddFile and its variants always use the strategy passed to them.
func (a *Archive) SetDefaultStrategy(s Strategy) {
	a.strategy = s
}

// GetDefaultStrategy returns the strategy currently used by default.
func (a *Archive) GetDefaultStrategy() Strategy {
	return a.strategy
}

// Iterate calls fn once per live entry, in list order, stopping early if
// fn returns a non-nil error.
func (a *Archive) Iterate(fn func(EntryInfo) error) error {
	return a.mgr.iterate(func(h entryHeader) error {
		name, err := a.mgr.readEntryName(h)
		if err != nil {
			return err
		}
		return fn(EntryInfo{Name: name, Kind: h.kind, PayloadSize: h.payloadSize, CodecID: h.codecID, CodecParam: h.codecParam})
	})
}

// Find returns the live entry named name.
func (a *Archive) Find(name string) (EntryInfo, error) {
	_, h, err := a.mgr.findWithPrev(name)
	if err != nil {
		return EntryInfo{}, err
	}
	return EntryInfo{Name: name, Kind: h.kind, PayloadSize: h.payloadSize, CodecID: h.codecID, CodecParam: h.codecParam}, nil
}

// GetFileType reports whether name is a file or a folder.
func (a *Archive) GetFileType(name string) (EntryKind, error) {
	_, h, err := a.mgr.findWithPrev(name)
	if err != nil {
		return 0, err
	}
	return h.kind, nil
}

// AddFile compresses input under strategy into a scratch temporary file,
// then stores whichever of the compressed or raw representation is
// smaller under name. The temporary is removed on every exit path.
func (a *Archive) AddFile(name string, input io.ReadSeeker, strategy Strategy) error {
	tmp, err := os.CreateTemp("", "pacozip-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp sink: %w", ErrIO)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	return a.AddFileWithSink(name, input, strategy, tmp)
}

// AddFileWithSink is AddFile for callers that already have a scratch
// read-write-seekable sink to use for the intermediate compressed bytes
// (e.g. an in-memory buffer in tests). The sink's contents are undefined
// on return; callers own its lifetime.
func (a *Archive) AddFileWithSink(name string, input io.ReadSeeker, strategy Strategy, sink io.ReadWriteSeeker) error {
	if len(name) > maxNameSize {
		return fmt.Errorf("add %q: %w", name, ErrNameTooLong)
	}
	if err := a.checkNameFree(name); err != nil {
		return err
	}

	startPos, err := input.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seek input: %w", ErrIO)
	}
	end, err := input.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek input: %w", ErrIO)
	}
	inputSize := end - startPos
	if _, err := input.Seek(startPos, io.SeekStart); err != nil {
		return fmt.Errorf("seek input: %w", ErrIO)
	}

	enc, err := codec.NewEncoder(strategy.CodecID, strategy.CodecParam, sink)
	if err != nil {
		if errors.Is(err, codec.ErrUnknownCodec) {
			return fmt.Errorf("add %q: %w", name, ErrUnknownCodec)
		}
		return err
	}
	if err := enc.Compress(input, inputSize); err != nil {
		return err
	}
	if err := enc.Finish(); err != nil {
		return err
	}
	compressedSize, err := sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seek temp sink: %w", ErrIO)
	}

	var payloadSrc io.ReadSeeker
	var payloadSize, rewindTo int64
	codecID, codecParam := codec.None, uint8(0)

	if compressedSize >= inputSize {
		if _, err := input.Seek(startPos, io.SeekStart); err != nil {
			return fmt.Errorf("seek input: %w", ErrIO)
		}
		payloadSrc, payloadSize, rewindTo = input, inputSize, startPos
	} else {
		if _, err := sink.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek temp sink: %w", ErrIO)
		}
		payloadSrc, payloadSize, rewindTo = sink, compressedSize, 0
		codecID, codecParam = strategy.CodecID, strategy.CodecParam
	}

	return a.writeEntry(name, KindFile, codecID, codecParam, payloadSrc, payloadSize, rewindTo)
}

// AddFileFromPath opens sourcePath and stores it under name, using a named
// filesystem temporary as the scratch sink (removed on every exit path).
// It is the convenience form of AddFile for callers with a source already
// on disk rather than an open io.ReadSeeker.
func (a *Archive) AddFileFromPath(name, sourcePath string, strategy Strategy) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, ErrIO)
	}
	defer f.Close()
	return a.AddFile(name, f, strategy)
}

// AddFolder adds a zero-payload folder entry named name.
func (a *Archive) AddFolder(name string) error {
	if len(name) > maxNameSize {
		return fmt.Errorf("add %q: %w", name, ErrNameTooLong)
	}
	if err := a.checkNameFree(name); err != nil {
		return err
	}
	return a.writeEntry(name, KindFolder, codec.None, 0, nil, 0, 0)
}

func (a *Archive) checkNameFree(name string) error {
	_, _, err := a.mgr.findWithPrev(name)
	if err == nil {
		return fmt.Errorf("add %q: %w", name, ErrDuplicateName)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// writeEntry lays out a new entry's header, name, and payload at an
// allocator-chosen offset, then links it onto the tail as the final step.
// rewindTo is where payloadSrc must be seeked back to before copyPayload:
// computeChecksum has already consumed it once, and that start position
// isn't always 0 (payloadSrc may be the caller's own input reader, left
// sitting wherever it was when AddFile/AddFileWithSink was called).
func (a *Archive) writeEntry(name string, kind EntryKind, codecID codec.ID, codecParam uint8, payloadSrc io.ReadSeeker, payloadSize, rewindTo int64) error {
	entrySize := int64(entryHeaderSize) + int64(len(name)) + payloadSize

	occupied, err := a.occupiedRanges()
	if err != nil {
		return err
	}
	endOffset, err := a.store.EndOffset()
	if err != nil {
		return fmt.Errorf("end offset: %w", ErrIO)
	}
	offset, err := allocator.Place(entrySize, occupied, endOffset)
	if err != nil {
		return fmt.Errorf("place entry: %w", ErrCorrupted)
	}
	slog.Debug("pacozip: place entry", "name", name, "offset", offset, "size", entrySize,
		"reused_hole", offset < endOffset, "codec", codecID, "codec_param", codecParam)

	h := entryHeader{
		curFilePos:      offset,
		payloadSize:     payloadSize,
		nextEntryOffset: 0,
		nameSize:        uint16(len(name)),
		kind:            kind,
		codecID:         codecID,
		codecParam:      codecParam,
	}

	checksum, err := computeChecksum(h, name, payloadSrc, payloadSize)
	if err != nil {
		return err
	}
	h.checksum = checksum

	if err := a.mgr.writeEntryHeader(h); err != nil {
		return err
	}
	if err := a.store.WriteAt(offset+entryHeaderSize, []byte(name)); err != nil {
		return fmt.Errorf("write entry name: %w", ErrIO)
	}
	if payloadSize > 0 {
		if err := rewindPayload(payloadSrc, rewindTo); err != nil {
			return err
		}
		if err := copyPayload(a.store, offset+entryHeaderSize+int64(len(name)), payloadSrc, payloadSize); err != nil {
			return err
		}
	}

	if err := a.mgr.appendLink(offset); err != nil {
		return err
	}
	// writeEntryHeader already cached h, but without name (it hadn't been
	// written yet) or, if offset reused a hole, with a stale name left
	// over from whatever used to live there. Overwrite with the real one.
	a.cache.Put(offset, cacheEntryFromHeader(h, name))
	return nil
}

func rewindPayload(r io.ReadSeeker, to int64) error {
	if _, err := r.Seek(to, io.SeekStart); err != nil {
		return fmt.Errorf("rewind payload: %w", ErrIO)
	}
	return nil
}

// computeChecksum feeds the canonical CRC domain: scalar header fields,
// then the raw name bytes, then the payload bytes.
func computeChecksum(h entryHeader, name string, payloadSrc io.Reader, payloadSize int64) (uint32, error) {
	crc := crc32x.New()
	crcOverFields(crc, h)
	crc.Feed([]byte(name))
	if payloadSize > 0 {
		if err := crc.FeedReader(payloadSrc, payloadSize); err != nil {
			return 0, fmt.Errorf("checksum payload: %w", ErrIO)
		}
	}
	return crc.Sum32(), nil
}

// copyPayload streams exactly n bytes from r to the store at off, in
// fixed-size chunks.
func copyPayload(store *archivestore.Store, off int64, r io.Reader, n int64) error {
	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	for remaining := n; remaining > 0; {
		want := int64(chunk)
		if remaining < want {
			want = remaining
		}
		nr, err := io.ReadFull(r, buf[:want])
		if err != nil {
			return fmt.Errorf("read payload: %w", ErrIO)
		}
		if err := store.WriteAt(off, buf[:nr]); err != nil {
			return fmt.Errorf("write payload: %w", ErrIO)
		}
		off += int64(nr)
		remaining -= int64(nr)
	}
	return nil
}

// ReadFile decompresses name's payload into output.
func (a *Archive) ReadFile(name string, output io.Writer) error {
	_, h, err := a.mgr.findWithPrev(name)
	if err != nil {
		return err
	}
	if h.kind != KindFile {
		return fmt.Errorf("read %q: %w", name, ErrWrongKind)
	}
	dec, err := codec.NewDecoder(h.codecID, h.codecParam, output)
	if err != nil {
		if errors.Is(err, codec.ErrUnknownCodec) {
			return fmt.Errorf("read %q: %w", name, ErrUnknownCodec)
		}
		return err
	}
	src := a.store.SectionReader(h.curFilePos+entryHeaderSize+int64(h.nameSize), h.payloadSize)
	if err := dec.Decompress(src, h.payloadSize); err != nil {
		return err
	}
	return dec.Finish()
}

// DeleteFile unlinks name from the list; its payload region becomes a
// hole available to the allocator, and the container is not truncated.
func (a *Archive) DeleteFile(name string) error {
	prevOff, h, err := a.mgr.findWithPrev(name)
	if err != nil {
		return err
	}
	if err := a.mgr.unlinkAfter(prevOff, h); err != nil {
		return err
	}
	slog.Debug("pacozip: delete entry", "name", name, "offset", h.curFilePos, "hole_size", h.entryEnd()-h.curFilePos)
	return nil
}

// Verify traverses all live entries, reporting false if any pair of
// occupied ranges overlaps or any entry's recomputed CRC32 differs from
// its stored checksum. It only returns a non-nil error for an underlying
// I/O failure; structural problems are reported via the bool alone.
func (a *Archive) Verify() (bool, error) {
	var ranges []allocator.Range
	ok := true

	err := a.mgr.iterate(func(h entryHeader) error {
		ranges = append(ranges, allocator.Range{Begin: h.curFilePos, End: h.entryEnd()})

		name, err := a.mgr.readEntryName(h)
		if err != nil {
			return err
		}
		src := a.store.SectionReader(h.curFilePos+entryHeaderSize+int64(h.nameSize), h.payloadSize)
		got, err := computeChecksum(h, name, src, h.payloadSize)
		if err != nil {
			return err
		}
		if got != h.checksum {
			ok = false
			slog.Warn("pacozip: checksum mismatch", "name", name, "offset", h.curFilePos, "want", h.checksum, "got", got)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	// A zero-size placement never itself needs a gap; calling Place here is
	// just reusing its sort-and-overlap-check pass.
	if _, err := allocator.Place(0, ranges, 0); errors.Is(err, allocator.ErrOverlap) {
		ok = false
	}

	return ok, nil
}

// occupiedRanges collects the byte range each live entry currently
// occupies, for the allocator to place a new entry around.
func (a *Archive) occupiedRanges() ([]allocator.Range, error) {
	var ranges []allocator.Range
	err := a.mgr.iterate(func(h entryHeader) error {
		ranges = append(ranges, allocator.Range{Begin: h.curFilePos, End: h.entryEnd()})
		return nil
	})
	return ranges, err
}
