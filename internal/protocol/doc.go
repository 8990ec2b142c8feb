// Package protocol owns the envelope contract and its codecs.
//
// Ownership boundary:
// - envelope type and routing metadata
// - envelope codecs (protobuf wire, cbor)
// - handshake (cvid) payloads
// - transport error kinds shared by client and dispatcher
package protocol
