// Package codec implements the payload transforms stored alongside each
// archive entry: a byte-identical passthrough ("NONE") and an entry-local
// LZW variant with a fixed, per-entry dictionary width.
package codec

import "errors"

// ErrCorrupted is returned by a Decoder when the input ends mid-code, a
// decoded code exceeds the live dictionary, or residual bits remain at
// Finish that are not all zero.
var ErrCorrupted = errors.New("codec: corrupted stream")

// ID identifies which codec produced a payload. It is stored verbatim as
// the entry header's codec_id field.
type ID uint8

const (
	None ID = 0
	LZW  ID = 1
)

func (id ID) String() string {
	switch id {
	case None:
		return "NONE"
	case LZW:
		return "LZW"
	default:
		return "UNKNOWN"
	}
}

// Encoder consumes input bytes and writes the encoded representation to a
// sink bound at construction. Compress is called at most once per instance,
// followed by exactly one Finish call.
type Encoder interface {
	// Compress reads exactly n bytes from r and writes their encoded form
	// to the bound sink.
	Compress(r ByteSource, n int64) error
	// Finish flushes any bits buffered by Compress. It must be called
	// exactly once; no further calls are permitted afterwards.
	Finish() error
}

// Decoder consumes encoded input bytes and writes the decoded
// representation to a sink bound at construction.
type Decoder interface {
	// Decompress reads exactly n encoded bytes from r (n is the stored
	// payload size) and writes the decoded bytes to the bound sink.
	Decompress(r ByteSource, n int64) error
	// Finish checks that no unread bits remain; a nonzero residue means
	// ErrCorrupted. It must be called exactly once.
	Finish() error
}

// ByteSource is the minimal reading capability an encoder/decoder needs
// from its input; io.Reader satisfies it.
type ByteSource interface {
	Read(p []byte) (int, error)
}

// Sink is the minimal writing capability an encoder/decoder needs for its
// output; io.Writer satisfies it.
type Sink interface {
	Write(p []byte) (int, error)
}

// NewEncoder dispatches on id to build the encoder bound to sink, one of
// the two entries in the archive's codec table.
func NewEncoder(id ID, param uint8, sink Sink) (Encoder, error) {
	switch id {
	case None:
		return NewNoneEncoder(sink), nil
	case LZW:
		return NewLZWEncoder(sink, param)
	default:
		return nil, ErrUnknownCodec
	}
}

// NewDecoder dispatches on id to build the decoder bound to sink.
func NewDecoder(id ID, param uint8, sink Sink) (Decoder, error) {
	switch id {
	case None:
		return NewNoneDecoder(sink), nil
	case LZW:
		return NewLZWDecoder(sink, param)
	default:
		return nil, ErrUnknownCodec
	}
}
