package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every decode failure via errors.Is.
var ErrMalformed = errors.New("malformed packet")

// PacketError describes why a datagram was rejected by Decode.
type PacketError struct {
	Reason string
}

func (e *PacketError) Error() string {
	return "malformed packet: " + e.Reason
}

func (e *PacketError) Unwrap() error {
	return ErrMalformed
}

func malformed(format string, args ...any) *PacketError {
	return &PacketError{Reason: fmt.Sprintf(format, args...)}
}
