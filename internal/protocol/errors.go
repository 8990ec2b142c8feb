package protocol

import "errors"

var (
	ErrIllegalState = errors.New("protocol: illegal connection state")
	ErrTransport    = errors.New("protocol: transport error")
	ErrDecode       = errors.New("protocol: decode error")
	ErrHandshake    = errors.New("protocol: handshake failure")
	ErrUnknownCodec = errors.New("protocol: unknown codec")
)
