package frame

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultReadBufferSize is the capacity of a single socket read.
const DefaultReadBufferSize = 4096

var (
	ErrMalformedFrame = errors.New("frame: malformed frame")
	ErrIncomplete     = fmt.Errorf("%w: incomplete", ErrMalformedFrame)
	ErrInvalidLength  = fmt.Errorf("%w: invalid length prefix", ErrMalformedFrame)
	ErrFrameTooLarge  = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use. Zero means unbounded.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func (l Limits) check(n uint64) error {
	if l.MaxPayloadBytes > 0 && n > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, l.MaxPayloadBytes)
	}
	return nil
}

// Append appends the frame for payload (uvarint length, then payload) to dst.
func Append(dst []byte, payload []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// Encode returns the frame for payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, 0, protowire.SizeVarint(uint64(len(payload)))+len(payload))
	return Append(buf, payload)
}

// Decode reads one frame starting at buf[off]. The returned payload aliases buf.
// consumed counts the prefix and payload bytes.
func Decode(buf []byte, off int, limits Limits) (payload []byte, consumed int, err error) {
	if off < 0 || off > len(buf) {
		return nil, 0, fmt.Errorf("%w: offset %d out of range", ErrMalformedFrame, off)
	}
	rest := buf[off:]
	length, prefix := protowire.ConsumeVarint(rest)
	if prefix < 0 {
		if errors.Is(protowire.ParseError(prefix), io.ErrUnexpectedEOF) {
			return nil, 0, ErrIncomplete
		}
		return nil, 0, ErrInvalidLength
	}
	if err := limits.check(length); err != nil {
		return nil, 0, err
	}
	if length > uint64(len(rest)-prefix) {
		return nil, 0, ErrIncomplete
	}
	end := prefix + int(length)
	return rest[prefix:end], end, nil
}

func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if err := limits.check(uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(Encode(payload))
	return err
}

// Reader yields complete frame payloads from a byte stream. Bytes of a
// partial trailing frame are kept and joined with the next read.
type Reader struct {
	src    io.Reader
	limits Limits
	chunk  []byte
	acc    []byte
	off    int
	err    error
}

func NewReader(src io.Reader, bufferSize int, limits Limits) *Reader {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &Reader{
		src:    src,
		limits: limits,
		chunk:  make([]byte, bufferSize),
	}
}

// Buffered reports how many received bytes are not yet part of a returned frame.
func (r *Reader) Buffered() int {
	return len(r.acc) - r.off
}

// Next returns the next payload in stream order. It returns io.EOF when the
// stream ends on a frame boundary (including a zero-length read) and
// io.ErrUnexpectedEOF when it ends inside a frame.
func (r *Reader) Next() ([]byte, error) {
	for {
		if r.Buffered() > 0 {
			payload, n, err := Decode(r.acc, r.off, r.limits)
			if err == nil {
				out := make([]byte, len(payload))
				copy(out, payload)
				r.off += n
				if r.off == len(r.acc) {
					r.acc = r.acc[:0]
					r.off = 0
				}
				return out, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return nil, err
			}
		}
		if r.err != nil {
			return nil, r.finish()
		}
		r.fill()
	}
}

func (r *Reader) fill() {
	if r.off > 0 {
		n := copy(r.acc, r.acc[r.off:])
		r.acc = r.acc[:n]
		r.off = 0
	}
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.acc = append(r.acc, r.chunk[:n]...)
	}
	switch {
	case err != nil:
		r.err = err
	case n == 0:
		r.err = io.EOF
	}
}

func (r *Reader) finish() error {
	if errors.Is(r.err, io.EOF) && r.Buffered() > 0 {
		return io.ErrUnexpectedEOF
	}
	return r.err
}
