// Copyright (c) pacozip contributors
// Licensed under the MIT license

// Package entrycache caches decoded entry headers by the offset they were
// read from, so that repeated Find/Iterate calls over a large archive
// don't re-parse headers already seen this session. It is purely an
// in-memory speedup: the archive facade still treats the on-disk list as
// the source of truth and keeps the cache current itself on every write.
package entrycache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// Entry is the cached shape of one on-disk entry header plus its name,
// kept deliberately independent of the pacozip package's own entryHeader
// type so this package has no import-cycle-inducing dependency on it.
type Entry struct {
	PayloadSize     int64
	NextEntryOffset int64
	Checksum        uint32
	NameSize        uint16
	Kind            uint8
	CodecID         uint8
	CodecParam      uint8
	Name            string
}

// Cache is a small admission-counted cache of (offset -> Entry), sized for
// archives with up to a few thousand live entries.
type Cache struct {
	lfu *tinylfu.T[int64, Entry]
}

// New returns a cache that holds up to capacity entries.
func New(capacity int) *Cache {
	return &Cache{
		lfu: tinylfu.New[int64, Entry](capacity, capacity*10, hashOffset),
	}
}

func hashOffset(off int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(off))
	return xxhash.Sum64(buf[:])
}

// Get returns the cached entry at offset, if present.
func (c *Cache) Get(offset int64) (Entry, bool) {
	return c.lfu.Get(offset)
}

// Put records the entry at offset, overwriting whatever was cached there.
// Callers must call this with the new content whenever they write a
// header to offset (a link/unlink splice changes next_entry_offset even
// though the name and payload don't move).
func (c *Cache) Put(offset int64, e Entry) {
	c.lfu.Add(offset, e)
}
