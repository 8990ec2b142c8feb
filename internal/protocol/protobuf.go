package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers on the protobuf wire.
const (
	fieldEnvelopeID      protowire.Number = 1
	fieldEnvelopeTo      protowire.Number = 2
	fieldEnvelopeFrom    protowire.Number = 3
	fieldEnvelopePayload protowire.Number = 4
)

type protobufCodec struct{}

// Protobuf returns the default envelope codec. It writes proto3 wire format
// and skips unknown fields on read.
func Protobuf() Codec {
	return protobufCodec{}
}

func (protobufCodec) Name() string { return CodecProtobuf }

func (protobufCodec) MarshalEnvelope(env Envelope) ([]byte, error) {
	var b []byte
	b = appendVarintField(b, fieldEnvelopeID, uint64(env.ID))
	b = appendVarintField(b, fieldEnvelopeTo, uint64(int64(env.To)))
	b = appendVarintField(b, fieldEnvelopeFrom, uint64(int64(env.From)))
	if len(env.Payload) > 0 {
		b = protowire.AppendTag(b, fieldEnvelopePayload, protowire.BytesType)
		b = protowire.AppendBytes(b, env.Payload)
	}
	return b, nil
}

func (protobufCodec) UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEnvelopeID:
			v, n, err := consumeVarintField(typ, b)
			if err != nil {
				return 0, err
			}
			if v > 0xffff {
				return 0, fmt.Errorf("%w: envelope id %d out of range", ErrDecode, v)
			}
			env.ID = uint16(v)
			return n, nil
		case fieldEnvelopeTo:
			v, n, err := consumeVarintField(typ, b)
			env.To = int32(v)
			return n, err
		case fieldEnvelopeFrom:
			v, n, err := consumeVarintField(typ, b)
			env.From = int32(v)
			return n, err
		case fieldEnvelopePayload:
			v, n, err := consumeBytesField(typ, b)
			env.Payload = v
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeFields walks every field in data. fn returns the number of value
// bytes it consumed, or -1 to have the field skipped as unknown.
func consumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(m))
			}
		}
		data = data[m:]
	}
	return nil
}

func consumeVarintField(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: wire type %d, want varint", ErrDecode, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytesField(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: wire type %d, want bytes", ErrDecode, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}
