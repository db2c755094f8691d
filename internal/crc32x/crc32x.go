// Package crc32x computes the reflected CRC32 used by the archive format
// (polynomial 0xEDB88320), fed incrementally over scalars, byte slices, and
// streams rather than all at once.
package crc32x

import (
	"encoding/binary"
	"io"
	"sync"
)

const polynomial = 0xEDB88320

var tableOnce = sync.OnceValue(buildTable)

func buildTable() *[256]uint32 {
	var t [256]uint32
	for i := range uint32(256) {
		c := i
		for range 8 {
			if c&1 != 0 {
				c = polynomial ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return &t
}

// CRC32 accumulates a CRC32 value across repeated Feed calls.
type CRC32 struct {
	table *[256]uint32
	state uint32 // kept inverted between feeds, as the reference implementation does
}

// New returns a CRC32 with state zero.
func New() *CRC32 {
	return &CRC32{table: tableOnce()}
}

// Feed absorbs raw bytes into the running checksum.
func (c *CRC32) Feed(buf []byte) {
	crc := ^c.state
	for _, b := range buf {
		crc = c.table[byte(crc)^b] ^ (crc >> 8)
	}
	c.state = ^crc
}

// FeedScalar absorbs the little-endian byte representation of a fixed-width
// unsigned integer. T is constrained to the unsigned integer kinds that the
// archive header and entry header fields actually use.
func FeedScalar[T uint8 | uint16 | uint32 | uint64](c *CRC32, v T) {
	switch any(v).(type) {
	case uint8:
		c.Feed([]byte{byte(v)})
	case uint16:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v))
		c.Feed(buf[:])
	case uint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		c.Feed(buf[:])
	case uint64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		c.Feed(buf[:])
	}
}

// FeedReader reads exactly n bytes from r, in 1024-byte chunks, feeding each
// chunk into the checksum as it is read.
func (c *CRC32) FeedReader(r io.Reader, n int64) error {
	var buf [1024]byte
	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return err
		}
		c.Feed(buf[:chunk])
		n -= chunk
	}
	return nil
}

// Sum32 returns the checksum accumulated so far.
func (c *CRC32) Sum32() uint32 {
	return c.state
}
