package protocol

import "bytes"

// Envelope is one routable message. To and From are optional; zero means unset.
type Envelope struct {
	ID      uint16
	To      int32
	From    int32
	Payload []byte
}

// Equal compares routing metadata and payload bytes. A nil payload equals an empty one.
func (e Envelope) Equal(o Envelope) bool {
	return e.ID == o.ID && e.To == o.To && e.From == o.From && bytes.Equal(e.Payload, o.Payload)
}

// InstanceType classifies the local instance during the handshake.
type InstanceType int32

const (
	InstanceUnspecified InstanceType = 0
	InstanceServer      InstanceType = 1
	InstanceClient      InstanceType = 2
	InstanceAgent       InstanceType = 3
)

// InstanceFlavor is the implementation variant of an instance.
type InstanceFlavor int32

const (
	FlavorNone        InstanceFlavor = 0
	FlavorVanilla     InstanceFlavor = 1
	FlavorBrightstone InstanceFlavor = 2
	FlavorAscetic     InstanceFlavor = 3
)

func (t InstanceType) String() string {
	switch t {
	case InstanceServer:
		return "server"
	case InstanceClient:
		return "client"
	case InstanceAgent:
		return "agent"
	default:
		return "unspecified"
	}
}

func (f InstanceFlavor) String() string {
	switch f {
	case FlavorVanilla:
		return "vanilla"
	case FlavorBrightstone:
		return "brightstone"
	case FlavorAscetic:
		return "ascetic"
	default:
		return "none"
	}
}

// ParseInstanceType maps a config name to an InstanceType.
func ParseInstanceType(name string) (InstanceType, bool) {
	for _, t := range []InstanceType{InstanceServer, InstanceClient, InstanceAgent} {
		if t.String() == name {
			return t, true
		}
	}
	return InstanceUnspecified, false
}

// ParseInstanceFlavor maps a config name to an InstanceFlavor.
func ParseInstanceFlavor(name string) (InstanceFlavor, bool) {
	for _, f := range []InstanceFlavor{FlavorNone, FlavorVanilla, FlavorBrightstone, FlavorAscetic} {
		if f.String() == name {
			return f, true
		}
	}
	return FlavorNone, false
}
