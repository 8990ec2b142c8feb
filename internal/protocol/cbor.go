package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type cborEnvelope struct {
	ID      uint16 `cbor:"1,keyasint,omitempty"`
	To      int32  `cbor:"2,keyasint,omitempty"`
	From    int32  `cbor:"3,keyasint,omitempty"`
	Payload []byte `cbor:"4,keyasint,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns an envelope codec using deterministic CBOR maps keyed by the
// same field numbers as the protobuf codec.
func CBOR() Codec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return CodecCBOR }

func (c cborCodec) MarshalEnvelope(env Envelope) ([]byte, error) {
	return c.enc.Marshal(cborEnvelope{
		ID:      env.ID,
		To:      env.To,
		From:    env.From,
		Payload: env.Payload,
	})
}

func (c cborCodec) UnmarshalEnvelope(data []byte) (Envelope, error) {
	var raw cborEnvelope
	if err := c.dec.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Envelope{
		ID:      raw.ID,
		To:      raw.To,
		From:    raw.From,
		Payload: raw.Payload,
	}, nil
}
