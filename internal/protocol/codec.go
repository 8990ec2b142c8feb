package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/s7snet/internal/protocol/frame"
)

const (
	CodecProtobuf = "protobuf"
	CodecCBOR     = "cbor"
)

// Codec converts envelopes to and from the bytes carried inside one frame.
type Codec interface {
	Name() string
	MarshalEnvelope(env Envelope) ([]byte, error)
	UnmarshalEnvelope(data []byte) (Envelope, error)
}

// CodecByName returns the codec registered under name. Empty selects protobuf.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecProtobuf:
		return Protobuf(), nil
	case CodecCBOR:
		return CBOR(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// EncodeEnvelope serializes env and prefixes it with its varint length.
func EncodeEnvelope(c Codec, env Envelope) ([]byte, error) {
	body, err := c.MarshalEnvelope(env)
	if err != nil {
		return nil, err
	}
	return frame.Encode(body), nil
}

// DecodeEnvelope decodes the frame at buf[off] and returns the envelope and
// the number of bytes consumed.
func DecodeEnvelope(c Codec, buf []byte, off int, limits frame.Limits) (Envelope, int, error) {
	body, n, err := frame.Decode(buf, off, limits)
	if err != nil {
		return Envelope{}, 0, err
	}
	env, err := c.UnmarshalEnvelope(body)
	if err != nil {
		return Envelope{}, 0, err
	}
	return env, n, nil
}
