package codec

import (
	"errors"
	"io"
)

// ErrUnknownCodec is returned by NewEncoder/NewDecoder for an id or param
// outside the ranges this package implements.
var ErrUnknownCodec = errors.New("codec: unknown codec id or parameter")

// widthForParam maps an entry header's codec_param byte to the LZW
// dictionary width in bits, per the archive format's fixed table.
var widthForParam = [10]uint{9, 10, 11, 13, 14, 16, 18, 21, 24, 26}

// WidthForParam returns the dictionary width W for a given codec_param, or
// ErrUnknownCodec if param is out of the defined 0..9 range.
func WidthForParam(param uint8) (uint, error) {
	if int(param) >= len(widthForParam) {
		return 0, ErrUnknownCodec
	}
	return widthForParam[param], nil
}

// lzwKey is the (prefix code, extending byte) pair the encoder's dictionary
// is keyed on.
type lzwKey struct {
	prefix uint32
	b      byte
}

// LZWEncoder implements the archive's entry-local LZW variant: single
// dictionary width W fixed for the lifetime of the instance, dictionary
// reset to the 256 singletons whenever live entries reach 2^W-1.
type LZWEncoder struct {
	sink     Sink
	w        uint
	dictMax  uint32 // sentinel / reset threshold, == 2^W - 1
	dict     map[lzwKey]uint32
	cur      uint32
	bitbuf   uint64
	bitbits  uint
	finished bool
}

// NewLZWEncoder binds an LZW encoder with dictionary width chosen by param
// (see WidthForParam) to sink.
func NewLZWEncoder(sink Sink, param uint8) (*LZWEncoder, error) {
	w, err := WidthForParam(param)
	if err != nil {
		return nil, err
	}
	return &LZWEncoder{
		sink:    sink,
		w:       w,
		dictMax: uint32(1)<<w - 1,
	}, nil
}

func (e *LZWEncoder) resetDict() {
	e.dict = make(map[lzwKey]uint32, 256)
	for i := range 256 {
		e.dict[lzwKey{e.dictMax, byte(i)}] = uint32(i)
	}
}

// Compress runs the single-pass LZW encode over exactly n input bytes. It
// must be called exactly once, before Finish.
func (e *LZWEncoder) Compress(r ByteSource, n int64) error {
	e.resetDict()
	e.cur = e.dictMax // INVALID

	var buf [4096]byte
	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return err
		}
		for _, b := range buf[:chunk] {
			if uint32(len(e.dict)) == e.dictMax {
				e.resetDict()
			}

			key := lzwKey{e.cur, b}
			if code, ok := e.dict[key]; ok {
				e.cur = code
			} else {
				e.dict[key] = uint32(len(e.dict))
				if err := e.emit(e.cur); err != nil {
					return err
				}
				e.cur = uint32(b)
			}
		}
		n -= chunk
	}

	if e.cur != e.dictMax {
		if err := e.emit(e.cur); err != nil {
			return err
		}
	}
	return nil
}

func (e *LZWEncoder) emit(code uint32) error {
	e.bitbuf |= uint64(code) << e.bitbits
	e.bitbits += e.w
	for e.bitbits >= 8 {
		if _, err := e.sink.Write([]byte{byte(e.bitbuf)}); err != nil {
			return err
		}
		e.bitbuf >>= 8
		e.bitbits -= 8
	}
	return nil
}

// Finish flushes any residual bits as one final zero-padded byte.
func (e *LZWEncoder) Finish() error {
	if e.finished {
		return nil
	}
	e.finished = true
	if e.bitbits == 0 {
		return nil
	}
	_, err := e.sink.Write([]byte{byte(e.bitbuf)})
	e.bitbuf, e.bitbits = 0, 0
	return err
}

// lzwBitReader pulls W-bit little-endian codes out of a byte source with a
// known total budget of encoded bytes remaining.
type lzwBitReader struct {
	r       ByteSource
	remain  int64
	bitbuf  uint64
	bitbits uint
}

// readCode returns ok=false,err=nil at a clean end-of-payload boundary, and
// a non-nil err if the payload ends partway through a code.
func (br *lzwBitReader) readCode(w uint) (code uint32, ok bool, err error) {
	if br.remain == 0 {
		return 0, false, nil
	}
	var b [1]byte
	for br.bitbits < w {
		if br.remain == 0 {
			return 0, false, ErrCorrupted
		}
		if _, err := io.ReadFull(br.r, b[:]); err != nil {
			return 0, false, err
		}
		br.remain--
		br.bitbuf |= uint64(b[0]) << br.bitbits
		br.bitbits += 8
	}
	mask := uint64(1)<<w - 1
	code = uint32(br.bitbuf & mask)
	br.bitbuf >>= w
	br.bitbits -= w
	return code, true, nil
}

// LZWDecoder is the inverse of LZWEncoder: an array-indexed (prefix, byte)
// dictionary rebuilt in lockstep with the encoder's map-based one.
type LZWDecoder struct {
	sink     Sink
	w        uint
	dictMax  uint32
	prefix   []uint32
	suffix   []byte
	prev     uint32
	scratch  []byte
	br       lzwBitReader
	finished bool
}

// NewLZWDecoder binds an LZW decoder with dictionary width chosen by param
// to sink.
func NewLZWDecoder(sink Sink, param uint8) (*LZWDecoder, error) {
	w, err := WidthForParam(param)
	if err != nil {
		return nil, err
	}
	return &LZWDecoder{
		sink:    sink,
		w:       w,
		dictMax: uint32(1)<<w - 1,
	}, nil
}

func (d *LZWDecoder) resetDict() {
	d.prefix = d.prefix[:0]
	d.suffix = d.suffix[:0]
	for i := range 256 {
		d.prefix = append(d.prefix, d.dictMax)
		d.suffix = append(d.suffix, byte(i))
	}
}

// firstByte returns the first byte that code's expansion would emit, by
// walking the prefix chain back to a singleton.
func (d *LZWDecoder) firstByte(code uint32) (byte, error) {
	for {
		if int(code) >= len(d.prefix) {
			return 0, ErrCorrupted
		}
		p := d.prefix[code]
		if p == d.dictMax {
			return d.suffix[code], nil
		}
		code = p
	}
}

// stringFor expands code into d.scratch (reused across calls), in order.
func (d *LZWDecoder) stringFor(code uint32) ([]byte, error) {
	d.scratch = d.scratch[:0]
	for {
		if int(code) >= len(d.prefix) {
			return nil, ErrCorrupted
		}
		d.scratch = append(d.scratch, d.suffix[code])
		p := d.prefix[code]
		if p == d.dictMax {
			break
		}
		code = p
	}
	for i, j := 0, len(d.scratch)-1; i < j; i, j = i+1, j-1 {
		d.scratch[i], d.scratch[j] = d.scratch[j], d.scratch[i]
	}
	return d.scratch, nil
}

// Decompress runs the LZW decode over exactly n encoded bytes read from r.
func (d *LZWDecoder) Decompress(r ByteSource, n int64) error {
	d.resetDict()
	d.prev = d.dictMax // INVALID
	d.br = lzwBitReader{r: r, remain: n}

	for {
		code, ok, err := d.br.readCode(d.w)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if uint32(len(d.prefix)) == d.dictMax {
			d.resetDict()
		}
		size := uint32(len(d.prefix))

		if code > size {
			return ErrCorrupted
		}

		var out []byte
		if code == size {
			if d.prev == d.dictMax {
				return ErrCorrupted
			}
			first, err := d.firstByte(d.prev)
			if err != nil {
				return err
			}
			d.prefix = append(d.prefix, d.prev)
			d.suffix = append(d.suffix, first)
			out, err = d.stringFor(code)
			if err != nil {
				return err
			}
		} else {
			var err error
			out, err = d.stringFor(code)
			if err != nil {
				return err
			}
			if d.prev != d.dictMax {
				d.prefix = append(d.prefix, d.prev)
				d.suffix = append(d.suffix, out[0])
			}
		}

		if _, err := d.sink.Write(out); err != nil {
			return err
		}
		d.prev = code
	}
}

// Finish verifies that any bits left unconsumed in the bit buffer are zero
// padding, not a truncated code.
func (d *LZWDecoder) Finish() error {
	if d.finished {
		return nil
	}
	d.finished = true
	if d.br.bitbuf != 0 {
		return ErrCorrupted
	}
	return nil
}
