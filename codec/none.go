package codec

import "io"

// NoneEncoder copies its input to the sink unchanged.
type NoneEncoder struct {
	sink Sink
}

// NewNoneEncoder binds a byte-identical encoder to sink.
func NewNoneEncoder(sink Sink) *NoneEncoder {
	return &NoneEncoder{sink: sink}
}

func (e *NoneEncoder) Compress(r ByteSource, n int64) error {
	var buf [1024]byte
	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return err
		}
		if _, err := e.sink.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (e *NoneEncoder) Finish() error { return nil }

// NoneDecoder copies its input to the sink unchanged.
type NoneDecoder struct {
	sink Sink
}

// NewNoneDecoder binds a byte-identical decoder to sink.
func NewNoneDecoder(sink Sink) *NoneDecoder {
	return &NoneDecoder{sink: sink}
}

func (d *NoneDecoder) Decompress(r ByteSource, n int64) error {
	var buf [1024]byte
	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return err
		}
		if _, err := d.sink.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (d *NoneDecoder) Finish() error { return nil }
