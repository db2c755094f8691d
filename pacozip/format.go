// Copyright (c) pacozip contributors
// Licensed under the MIT license

// Package pacozip implements the PacoZIP single-file archive format: a
// seekable container holding a linked list of named file/folder entries,
// each with its own compression codec and CRC32 integrity check, mutable
// in place without rewriting the whole file.
package pacozip

import (
	"encoding/binary"

	"github.com/pacodinev/pacozip/codec"
	"github.com/pacodinev/pacozip/internal/crc32x"
)

// Magic identifies a PacoZIP container: the literal ASCII "PacoZIPP".
var Magic = [8]byte{'P', 'a', 'c', 'o', 'Z', 'I', 'P', 'P'}

const (
	// HeaderVersion is the only archive header version this package
	// understands.
	HeaderVersion uint16 = 0

	// archiveHeaderSize is the fixed 20-byte prefix: magic(8) +
	// header_version(2) + reserved(2) + first_entry_offset(8).
	archiveHeaderSize = 20

	// firstEntryOffsetPos is the "before-begin" sentinel position used by
	// iteration and deletion to stand for the archive header's
	// first_entry_offset slot. It is never read from or written to; the
	// field itself is encoded at bytes 12..20 (after the reserved bytes).
	firstEntryOffsetPos = 10

	// entryHeaderSize is the fixed 29-byte entry header: payload_size(8)
	// + next_entry_offset(8) + checksum(4) + name_size(2) +
	// entry_kind(1) + codec_id(1) + codec_param(1).
	entryHeaderSize = 29

	// maxNameSize is the largest name_size the 16-bit field can hold
	// while still being distinguishable from "no entries" / sentinel
	// uses; the format reserves 0xFFFF.
	maxNameSize = 65534
)

// EntryKind distinguishes a file entry from a folder entry.
type EntryKind uint8

const (
	KindFile   EntryKind = 0
	KindFolder EntryKind = 1
)

func (k EntryKind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// archiveHeader is the 20-byte fixed prefix of a PacoZIP container.
type archiveHeader struct {
	version          uint16
	firstEntryOffset int64 // 0 means empty
}

func decodeArchiveHeader(buf []byte) (archiveHeader, error) {
	if len(buf) < archiveHeaderSize {
		return archiveHeader{}, ErrIO
	}
	if [8]byte(buf[:8]) != Magic {
		return archiveHeader{}, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(buf[8:10])
	if version != HeaderVersion {
		return archiveHeader{}, ErrUnknownVersion
	}
	first := int64(binary.LittleEndian.Uint64(buf[12:20]))
	return archiveHeader{version: version, firstEntryOffset: first}, nil
}

func encodeArchiveHeader(h archiveHeader) []byte {
	buf := make([]byte, archiveHeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.version)
	// buf[10:12] reserved, left zero
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.firstEntryOffset))
	return buf
}

// entryHeader is the 29-byte fixed header preceding every entry's name and
// payload.
type entryHeader struct {
	curFilePos      int64 // not stored; the offset this header was read from/will be written to
	payloadSize     int64
	nextEntryOffset int64
	checksum        uint32
	nameSize        uint16
	kind            EntryKind
	codecID         codec.ID
	codecParam      uint8
}

func decodeEntryHeader(at int64, buf []byte) (entryHeader, error) {
	if len(buf) < entryHeaderSize {
		return entryHeader{}, ErrIO
	}
	return entryHeader{
		curFilePos:      at,
		payloadSize:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		nextEntryOffset: int64(binary.LittleEndian.Uint64(buf[8:16])),
		checksum:        binary.LittleEndian.Uint32(buf[16:20]),
		nameSize:        binary.LittleEndian.Uint16(buf[20:22]),
		kind:            EntryKind(buf[22]),
		codecID:         codec.ID(buf[23]),
		codecParam:      buf[24],
	}, nil
}

func encodeEntryHeader(h entryHeader) []byte {
	buf := make([]byte, entryHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.payloadSize))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.nextEntryOffset))
	binary.LittleEndian.PutUint32(buf[16:20], h.checksum)
	binary.LittleEndian.PutUint16(buf[20:22], h.nameSize)
	buf[22] = byte(h.kind)
	buf[23] = byte(h.codecID)
	buf[24] = h.codecParam
	return buf
}

// entryEnd returns the offset one past this entry's occupied range.
func (h entryHeader) entryEnd() int64 {
	return h.curFilePos + entryHeaderSize + int64(h.nameSize) + h.payloadSize
}

// crcOverFields feeds the scalar header fields into crc, in the canonical
// order defined by the format: payload_size, name_size, entry_kind,
// codec_id, codec_param. next_entry_offset and checksum are excluded.
func crcOverFields(crc *crc32x.CRC32, h entryHeader) {
	crc32x.FeedScalar(crc, uint64(h.payloadSize))
	crc32x.FeedScalar(crc, h.nameSize)
	crc32x.FeedScalar(crc, uint8(h.kind))
	crc32x.FeedScalar(crc, uint8(h.codecID))
	crc32x.FeedScalar(crc, h.codecParam)
}
