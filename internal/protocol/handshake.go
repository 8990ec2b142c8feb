package protocol

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// CvidRequest is the client->server handshake payload (RQ_Cvid).
type CvidRequest struct {
	UUID     string
	Instance InstanceType
	Flavor   InstanceFlavor
}

// CvidResponse is the server->client handshake payload (RS_Cvid).
type CvidResponse struct {
	SID        int32
	ServerCVID int32
	ServerUUID string
}

const (
	fieldCvidRequestUUID     protowire.Number = 1
	fieldCvidRequestInstance protowire.Number = 2
	fieldCvidRequestFlavor   protowire.Number = 3

	fieldCvidResponseSID        protowire.Number = 1
	fieldCvidResponseServerCVID protowire.Number = 2
	fieldCvidResponseServerUUID protowire.Number = 3
)

func (r CvidRequest) Validate() error {
	if strings.TrimSpace(r.UUID) == "" {
		return fmt.Errorf("%w: missing uuid", ErrHandshake)
	}
	return nil
}

func (r CvidRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, fieldCvidRequestUUID, r.UUID)
	b = appendVarintField(b, fieldCvidRequestInstance, uint64(int64(r.Instance)))
	b = appendVarintField(b, fieldCvidRequestFlavor, uint64(int64(r.Flavor)))
	return b
}

func ParseCvidRequest(data []byte) (CvidRequest, error) {
	var rq CvidRequest
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldCvidRequestUUID:
			v, n, err := consumeBytesField(typ, b)
			rq.UUID = string(v)
			return n, err
		case fieldCvidRequestInstance:
			v, n, err := consumeVarintField(typ, b)
			rq.Instance = InstanceType(int32(v))
			return n, err
		case fieldCvidRequestFlavor:
			v, n, err := consumeVarintField(typ, b)
			rq.Flavor = InstanceFlavor(int32(v))
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return CvidRequest{}, err
	}
	return rq, nil
}

// Validate rejects responses that did not allocate a server connection id.
func (r CvidResponse) Validate() error {
	if r.ServerCVID == 0 {
		return fmt.Errorf("%w: missing server_cvid", ErrHandshake)
	}
	return nil
}

func (r CvidResponse) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, fieldCvidResponseSID, uint64(int64(r.SID)))
	b = appendVarintField(b, fieldCvidResponseServerCVID, uint64(int64(r.ServerCVID)))
	b = appendStringField(b, fieldCvidResponseServerUUID, r.ServerUUID)
	return b
}

func ParseCvidResponse(data []byte) (CvidResponse, error) {
	var rs CvidResponse
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldCvidResponseSID:
			v, n, err := consumeVarintField(typ, b)
			rs.SID = int32(v)
			return n, err
		case fieldCvidResponseServerCVID:
			v, n, err := consumeVarintField(typ, b)
			rs.ServerCVID = int32(v)
			return n, err
		case fieldCvidResponseServerUUID:
			v, n, err := consumeBytesField(typ, b)
			rs.ServerUUID = string(v)
			return n, err
		}
		return -1, nil
	})
	if err != nil {
		return CvidResponse{}, err
	}
	return rs, nil
}
