// Copyright (c) pacozip contributors
// Licensed under the MIT license

package pacozip

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pacodinev/pacozip/codec"
	"github.com/pacodinev/pacozip/internal/archivestore"
)

// memMedium is a minimal in-memory archivestore.Medium for tests, mirroring
// the one in internal/archivestore's own test package.
type memMedium struct {
	buf  []byte
	seek int64
}

func (m *memMedium) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memMedium) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *memMedium) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.seek = offset
	case io.SeekCurrent:
		m.seek += offset
	case io.SeekEnd:
		m.seek = int64(len(m.buf)) + offset
	}
	return m.seek, nil
}

// memSink is a growable in-memory io.ReadWriteSeeker, standing in for the
// scratch temporary AddFile compresses into.
type memSink struct {
	buf []byte
	pos int64
}

func (s *memSink) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *memSink) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *memSink) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = int64(len(s.buf)) + offset
	}
	return s.pos, nil
}

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := CreateMedium(archivestore.Open(&memMedium{}))
	if err != nil {
		t.Fatalf("CreateMedium: %v", err)
	}
	return a
}

func addString(t *testing.T, a *Archive, name, content string, strategy Strategy) {
	t.Helper()
	if err := a.AddFileWithSink(name, bytes.NewReader([]byte(content)), strategy, &memSink{}); err != nil {
		t.Fatalf("AddFileWithSink(%q): %v", name, err)
	}
}

func readString(t *testing.T, a *Archive, name string) string {
	t.Helper()
	var out bytes.Buffer
	if err := a.ReadFile(name, &out); err != nil {
		t.Fatalf("ReadFile(%q): %v", name, err)
	}
	return out.String()
}

func countEntries(t *testing.T, a *Archive) int {
	t.Helper()
	n := 0
	if err := a.Iterate(func(EntryInfo) error { n++; return nil }); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	return n
}

// TestS1BasicStoreRetrieve covers spec scenario S1 across every defined LZW
// dictionary-width parameter.
func TestS1BasicStoreRetrieve(t *testing.T) {
	for param := uint8(0); param <= 9; param++ {
		param := param
		t.Run("", func(t *testing.T) {
			a := newTestArchive(t)
			strategy := Strategy{CodecID: codec.LZW, CodecParam: param}

			addString(t, a, "file1.txt", "TestTest1", strategy)
			addString(t, a, "file2.txt", "TestTest2", strategy)
			addString(t, a, "file3.txt", "TestTest3", strategy)
			if err := a.AddFolder("folder1"); err != nil {
				t.Fatalf("AddFolder: %v", err)
			}

			if ok, err := a.Verify(); err != nil || !ok {
				t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
			}
			if n := countEntries(t, a); n != 4 {
				t.Fatalf("countEntries = %d, want 4", n)
			}
			if got := readString(t, a, "file1.txt"); got != "TestTest1" {
				t.Fatalf("readFile(file1.txt) = %q", got)
			}
			kind, err := a.GetFileType("folder1")
			if err != nil || kind != KindFolder {
				t.Fatalf("GetFileType(folder1) = %v, %v; want folder, nil", kind, err)
			}

			if err := a.DeleteFile("file2.txt"); err != nil {
				t.Fatalf("DeleteFile(file2.txt): %v", err)
			}
			if err := a.DeleteFile("folder1"); err != nil {
				t.Fatalf("DeleteFile(folder1): %v", err)
			}
			if n := countEntries(t, a); n != 2 {
				t.Fatalf("countEntries after delete = %d, want 2", n)
			}
			if got := readString(t, a, "file1.txt"); got != "TestTest1" {
				t.Fatalf("readFile(file1.txt) after delete = %q", got)
			}
			if got := readString(t, a, "file3.txt"); got != "TestTest3" {
				t.Fatalf("readFile(file3.txt) after delete = %q", got)
			}

			addString(t, a, "file4.txt", "ASDSAasd4", strategy)
			if n := countEntries(t, a); n != 3 {
				t.Fatalf("countEntries after re-add = %d, want 3", n)
			}
			if ok, err := a.Verify(); err != nil || !ok {
				t.Fatalf("Verify() after re-add = %v, %v; want true, nil", ok, err)
			}
		})
	}
}

// TestS2IncompressiblePayloadStoresRaw covers spec scenario S2: random
// bytes that LZW cannot shrink must fall back to NONE, byte-exact.
func TestS2IncompressiblePayloadStoresRaw(t *testing.T) {
	a := newTestArchive(t)
	blob := make([]byte, 16)
	if _, err := rand.Read(blob); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	if err := a.AddFileWithSink("blob.bin", bytes.NewReader(blob), Strategy{CodecID: codec.LZW, CodecParam: 5}, &memSink{}); err != nil {
		t.Fatalf("AddFileWithSink: %v", err)
	}

	info, err := a.Find("blob.bin")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if info.PayloadSize != 16 {
		t.Fatalf("PayloadSize = %d, want 16", info.PayloadSize)
	}

	var out bytes.Buffer
	if err := a.ReadFile("blob.bin", &out); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(out.Bytes(), blob) {
		t.Fatal("round trip mismatch on incompressible payload")
	}
}

// TestS3HoleReuse covers spec scenario S3: deleting a middle entry opens a
// gap the allocator must hand back to a same-size-or-smaller successor.
func TestS3HoleReuse(t *testing.T) {
	a := newTestArchive(t)
	mk := func(n int) string {
		return string(bytes.Repeat([]byte{'x'}, n))
	}
	strategy := Strategy{CodecID: codec.None, CodecParam: 0}

	addString(t, a, "a", mk(1024), strategy)
	addString(t, a, "b", mk(1024), strategy)
	addString(t, a, "c", mk(1024), strategy)

	_, aHeader, err := a.mgr.findWithPrev("a")
	if err != nil {
		t.Fatalf("find a: %v", err)
	}
	_, bHeader, err := a.mgr.findWithPrev("b")
	if err != nil {
		t.Fatalf("find b: %v", err)
	}
	_, cHeader, err := a.mgr.findWithPrev("c")
	if err != nil {
		t.Fatalf("find c: %v", err)
	}

	if err := a.DeleteFile("b"); err != nil {
		t.Fatalf("DeleteFile(b): %v", err)
	}

	addString(t, a, "b2", mk(900), strategy)
	_, b2Header, err := a.mgr.findWithPrev("b2")
	if err != nil {
		t.Fatalf("find b2: %v", err)
	}

	if b2Header.curFilePos < aHeader.entryEnd() || b2Header.curFilePos >= cHeader.curFilePos {
		t.Fatalf("b2 at %d did not land in the hole vacated by b (%d..%d)", b2Header.curFilePos, bHeader.curFilePos, cHeader.curFilePos)
	}
}

// TestS4CorruptionDetection covers spec scenario S4: flipping one payload
// byte must make Verify report false.
func TestS4CorruptionDetection(t *testing.T) {
	a := newTestArchive(t)
	addString(t, a, "f", "hello world", Strategy{CodecID: codec.None, CodecParam: 0})

	if ok, err := a.Verify(); err != nil || !ok {
		t.Fatalf("Verify() before corruption = %v, %v; want true, nil", ok, err)
	}

	_, h, err := a.mgr.findWithPrev("f")
	if err != nil {
		t.Fatalf("find f: %v", err)
	}
	payloadOff := h.curFilePos + entryHeaderSize + int64(h.nameSize)
	buf, err := a.store.ReadAt(payloadOff, 1)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	buf[0] ^= 0xFF
	if err := a.store.WriteAt(payloadOff, buf); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if ok, err := a.Verify(); err != nil || ok {
		t.Fatalf("Verify() after corruption = %v, %v; want false, nil", ok, err)
	}
}

// TestS5DuplicateName covers spec scenario S5.
func TestS5DuplicateName(t *testing.T) {
	a := newTestArchive(t)
	addString(t, a, "f", "one", Strategy{CodecID: codec.None, CodecParam: 0})

	err := a.AddFileWithSink("f", bytes.NewReader([]byte("two")), Strategy{CodecID: codec.None, CodecParam: 0}, &memSink{})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}

// TestS6MagicRejection covers spec scenario S6.
func TestS6MagicRejection(t *testing.T) {
	m := &memMedium{buf: make([]byte, archiveHeaderSize)}
	copy(m.buf, "NOTPACOZ")

	_, err := OpenMedium(archivestore.Open(m))
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadFileWrongKind(t *testing.T) {
	a := newTestArchive(t)
	if err := a.AddFolder("d"); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	var out bytes.Buffer
	if err := a.ReadFile("d", &out); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("err = %v, want ErrWrongKind", err)
	}
}

func TestFindNotFound(t *testing.T) {
	a := newTestArchive(t)
	if _, err := a.Find("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestAddFileUnknownCodecStrategy covers the format's documented
// unknown-codec error kind on the write path: a strategy naming a codec_id
// outside the {None, LZW} table must surface as pacozip.ErrUnknownCodec,
// not the codec package's own codec.ErrUnknownCodec, which AddFileWithSink
// replaces rather than wraps.
func TestAddFileUnknownCodecStrategy(t *testing.T) {
	a := newTestArchive(t)
	strategy := Strategy{CodecID: codec.ID(99), CodecParam: 0}
	err := a.AddFileWithSink("f", bytes.NewReader([]byte("hello")), strategy, &memSink{})
	if !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("err = %v, want ErrUnknownCodec", err)
	}
}

// TestReadFileUnknownCodecStored covers the read path: an entry whose
// stored codec_id a corrupting write made unrecognizable must also surface
// as pacozip.ErrUnknownCodec from ReadFile.
func TestReadFileUnknownCodecStored(t *testing.T) {
	a := newTestArchive(t)
	addString(t, a, "f", "hello world", Strategy{CodecID: codec.None, CodecParam: 0})

	_, h, err := a.mgr.findWithPrev("f")
	if err != nil {
		t.Fatalf("find f: %v", err)
	}
	// codec_id is the entry header's 24th byte (offset 23 from curFilePos).
	codecIDOff := h.curFilePos + 23
	if err := a.store.WriteAt(codecIDOff, []byte{99}); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Reopen over the same store so the header is decoded from disk rather
	// than served from the entry-header cache that writing "f" populated.
	reopened, err := OpenMedium(a.store)
	if err != nil {
		t.Fatalf("OpenMedium: %v", err)
	}
	var out bytes.Buffer
	if err := reopened.ReadFile("f", &out); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("err = %v, want ErrUnknownCodec", err)
	}
}

// TestAddFileRewindsInputToItsStartingOffset covers an input reader that
// isn't positioned at 0 when AddFile/AddFileWithSink is called: the stored
// payload must still be the bytes starting from wherever the reader was,
// not from absolute offset 0, even on the store-raw fallback path (which
// re-reads input a second time after computeChecksum already consumed it
// once).
func TestAddFileRewindsInputToItsStartingOffset(t *testing.T) {
	a := newTestArchive(t)

	prefix := []byte("JUNKPREFIX-not-part-of-the-entry-")
	blob := make([]byte, 32)
	if _, err := rand.Read(blob); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	full := bytes.NewReader(append(append([]byte{}, prefix...), blob...))
	if _, err := full.Seek(int64(len(prefix)), io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}

	// Random bytes can't be shrunk by LZW, so AddFileWithSink takes the
	// store-raw fallback that re-reads input a second time.
	if err := a.AddFileWithSink("f", full, Strategy{CodecID: codec.LZW, CodecParam: 5}, &memSink{}); err != nil {
		t.Fatalf("AddFileWithSink: %v", err)
	}

	if ok, err := a.Verify(); err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}
	var out bytes.Buffer
	if err := a.ReadFile("f", &out); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(out.Bytes(), blob) {
		t.Fatalf("readFile(f) = %x, want %x (prefix bytes must not leak in)", out.Bytes(), blob)
	}
}

func TestNameTooLong(t *testing.T) {
	a := newTestArchive(t)
	name := string(bytes.Repeat([]byte{'n'}, maxNameSize+1))
	err := a.AddFileWithSink(name, bytes.NewReader(nil), Strategy{CodecID: codec.None, CodecParam: 0}, &memSink{})
	if !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
}

func TestDefaultStrategyRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	got := a.GetDefaultStrategy()
	if got.CodecID != codec.LZW {
		t.Fatalf("default codec = %v, want LZW", got.CodecID)
	}
	a.SetDefaultStrategy(Strategy{CodecID: codec.None, CodecParam: 0})
	if got := a.GetDefaultStrategy(); got.CodecID != codec.None {
		t.Fatalf("default codec after Set = %v, want None", got.CodecID)
	}
}

func TestIterateOrderMatchesAdditionAmongSurvivors(t *testing.T) {
	a := newTestArchive(t)
	strategy := Strategy{CodecID: codec.None, CodecParam: 0}
	addString(t, a, "a", "1", strategy)
	addString(t, a, "b", "2", strategy)
	addString(t, a, "c", "3", strategy)
	if err := a.DeleteFile("b"); err != nil {
		t.Fatalf("DeleteFile(b): %v", err)
	}
	addString(t, a, "d", "4", strategy)

	var got []EntryInfo
	if err := a.Iterate(func(e EntryInfo) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []EntryInfo{
		{Name: "a", Kind: KindFile, PayloadSize: 1, CodecID: codec.None},
		{Name: "c", Kind: KindFile, PayloadSize: 1, CodecID: codec.None},
		{Name: "d", Kind: KindFile, PayloadSize: 1, CodecID: codec.None},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Iterate() mismatch (-want +got):\n%s", diff)
	}
}
