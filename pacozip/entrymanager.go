// Copyright (c) pacozip contributors
// Licensed under the MIT license

package pacozip

import (
	"fmt"

	"github.com/pacodinev/pacozip/codec"
	"github.com/pacodinev/pacozip/internal/archivestore"
	"github.com/pacodinev/pacozip/internal/entrycache"
)

// entryManager owns the in-memory archive header and a cached tail
// pointer, and performs the header reads/writes and link splicing that
// keep the on-disk linked list consistent.
//
// lastEntryOffset is an explicit optional (lastEntryValid) rather than an
// uninitialized read of whatever was last probed — the reference
// implementation's getLastFilePos has a documented hazard here (see
// DESIGN.md) that this type sidesteps entirely.
type entryManager struct {
	store           *archivestore.Store
	header          archiveHeader
	lastEntryOffset int64
	lastEntryValid  bool

	// cache memoizes decoded headers (and, once seen, names) keyed by
	// offset, so repeated Find/Iterate calls over an archive whose
	// headers were already read don't re-parse them. It is nil-safe: a
	// nil cache just disables memoization.
	cache *entrycache.Cache
}

func newEntryManager(store *archivestore.Store, header archiveHeader, cache *entrycache.Cache) *entryManager {
	return &entryManager{store: store, header: header, cache: cache}
}

func cacheEntryFromHeader(h entryHeader, name string) entrycache.Entry {
	return entrycache.Entry{
		PayloadSize:     h.payloadSize,
		NextEntryOffset: h.nextEntryOffset,
		Checksum:        h.checksum,
		NameSize:        h.nameSize,
		Kind:            uint8(h.kind),
		CodecID:         uint8(h.codecID),
		CodecParam:      h.codecParam,
		Name:            name,
	}
}

func headerFromCacheEntry(at int64, e entrycache.Entry) entryHeader {
	return entryHeader{
		curFilePos:      at,
		payloadSize:     e.PayloadSize,
		nextEntryOffset: e.NextEntryOffset,
		checksum:        e.Checksum,
		nameSize:        e.NameSize,
		kind:            EntryKind(e.Kind),
		codecID:         codec.ID(e.CodecID),
		codecParam:      e.CodecParam,
	}
}

func (m *entryManager) readArchiveHeader() error {
	buf, err := m.store.ReadAt(0, archiveHeaderSize)
	if err != nil {
		return fmt.Errorf("read archive header: %w", ErrIO)
	}
	h, err := decodeArchiveHeader(buf)
	if err != nil {
		return err
	}
	m.header = h
	return nil
}

func (m *entryManager) writeArchiveHeader() error {
	if err := m.store.WriteAt(0, encodeArchiveHeader(m.header)); err != nil {
		return fmt.Errorf("write archive header: %w", ErrIO)
	}
	return nil
}

func (m *entryManager) readEntryHeader(at int64) (entryHeader, error) {
	if m.cache != nil {
		if e, ok := m.cache.Get(at); ok {
			return headerFromCacheEntry(at, e), nil
		}
	}
	buf, err := m.store.ReadAt(at, entryHeaderSize)
	if err != nil {
		return entryHeader{}, fmt.Errorf("read entry header at %d: %w", at, ErrIO)
	}
	h, err := decodeEntryHeader(at, buf)
	if err != nil {
		return entryHeader{}, err
	}
	if m.cache != nil {
		m.cache.Put(at, cacheEntryFromHeader(h, ""))
	}
	return h, nil
}

func (m *entryManager) writeEntryHeader(h entryHeader) error {
	if err := m.store.WriteAt(h.curFilePos, encodeEntryHeader(h)); err != nil {
		return fmt.Errorf("write entry header at %d: %w", h.curFilePos, ErrIO)
	}
	if m.cache != nil {
		name := ""
		if e, ok := m.cache.Get(h.curFilePos); ok {
			name = e.Name
		}
		m.cache.Put(h.curFilePos, cacheEntryFromHeader(h, name))
	}
	return nil
}

// appendLink links a freshly written entry at newOffset onto the tail of
// the list: either it becomes the new first_entry_offset (empty archive),
// or the prior tail's next_entry_offset is updated to point at it. Either
// way the cached tail pointer is updated last.
func (m *entryManager) appendLink(newOffset int64) error {
	if m.header.firstEntryOffset == 0 {
		m.header.firstEntryOffset = newOffset
		if err := m.writeArchiveHeader(); err != nil {
			return err
		}
	} else {
		tailOff, err := m.getLastEntryOffset()
		if err != nil {
			return err
		}
		tail, err := m.readEntryHeader(tailOff)
		if err != nil {
			return err
		}
		tail.nextEntryOffset = newOffset
		if err := m.writeEntryHeader(tail); err != nil {
			return err
		}
	}
	m.lastEntryOffset = newOffset
	m.lastEntryValid = true
	return nil
}

// unlinkAfter splices out the entry following prevOffset (which may be the
// before-begin sentinel firstEntryOffsetPos, representing the archive
// header's first_entry_offset slot). If the unlinked entry was the tail,
// the tail pointer moves back to prevOffset.
func (m *entryManager) unlinkAfter(prevOffset int64, removed entryHeader) error {
	if prevOffset == firstEntryOffsetPos {
		m.header.firstEntryOffset = removed.nextEntryOffset
		if err := m.writeArchiveHeader(); err != nil {
			return err
		}
	} else {
		prev, err := m.readEntryHeader(prevOffset)
		if err != nil {
			return err
		}
		prev.nextEntryOffset = removed.nextEntryOffset
		if err := m.writeEntryHeader(prev); err != nil {
			return err
		}
	}

	if m.lastEntryValid && m.lastEntryOffset == removed.curFilePos {
		if prevOffset == firstEntryOffsetPos {
			m.lastEntryValid = false
		} else {
			m.lastEntryOffset = prevOffset
			m.lastEntryValid = true
		}
	}
	return nil
}

// getLastEntryOffset returns the offset of the tail entry, traversing the
// whole list the first time it's needed and caching thereafter. Callers
// must ensure the list is non-empty before calling this.
func (m *entryManager) getLastEntryOffset() (int64, error) {
	if m.lastEntryValid {
		return m.lastEntryOffset, nil
	}
	if m.header.firstEntryOffset == 0 {
		return 0, fmt.Errorf("getLastEntryOffset: %w", ErrCorrupted)
	}

	off := m.header.firstEntryOffset
	for {
		h, err := m.readEntryHeader(off)
		if err != nil {
			return 0, err
		}
		if h.nextEntryOffset == 0 {
			m.lastEntryOffset = off
			m.lastEntryValid = true
			return off, nil
		}
		off = h.nextEntryOffset
	}
}

// iterate calls fn for every live entry in list order, stopping early (and
// returning that error) if fn returns a non-nil error. It reflects the
// state of the archive at the time each step runs, per the format's
// forward-only, reflects-current-state iteration contract.
func (m *entryManager) iterate(fn func(h entryHeader) error) error {
	off := m.header.firstEntryOffset
	for off != 0 {
		h, err := m.readEntryHeader(off)
		if err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
		off = h.nextEntryOffset
	}
	return nil
}

// findWithPrev locates the entry named name, returning its header and the
// offset of its predecessor entry (firstEntryOffsetPos if it is the head). It reports ErrNotFound if no such entry exists.
func (m *entryManager) findWithPrev(name string) (prevOffset int64, h entryHeader, err error) {
	prevOffset = firstEntryOffsetPos
	off := m.header.firstEntryOffset
	for off != 0 {
		cur, err := m.readEntryHeader(off)
		if err != nil {
			return 0, entryHeader{}, err
		}
		curName, err := m.readEntryName(cur)
		if err != nil {
			return 0, entryHeader{}, err
		}
		if curName == name {
			return prevOffset, cur, nil
		}
		prevOffset = off
		off = cur.nextEntryOffset
	}
	return 0, entryHeader{}, fmt.Errorf("find %q: %w", name, ErrNotFound)
}

func (m *entryManager) readEntryName(h entryHeader) (string, error) {
	if m.cache != nil {
		if e, ok := m.cache.Get(h.curFilePos); ok && e.Name != "" {
			return e.Name, nil
		}
	}
	buf, err := m.store.ReadAt(h.curFilePos+entryHeaderSize, int(h.nameSize))
	if err != nil {
		return "", fmt.Errorf("read entry name at %d: %w", h.curFilePos, ErrIO)
	}
	name := string(buf)
	if m.cache != nil {
		m.cache.Put(h.curFilePos, cacheEntryFromHeader(h, name))
	}
	return name, nil
}
