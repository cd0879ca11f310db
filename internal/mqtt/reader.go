package mqtt

import (
	"errors"
	"fmt"
	"io"
)

// ErrPacketTooLarge is returned by ReadPacket when the advertised
// remaining length exceeds the caller's maxSize bound.
var ErrPacketTooLarge = errors.New("mqtt: packet exceeds max request size")

// ReadPacket reads exactly one framed packet off r: the fixed header
// byte, the 1-4 byte remaining-length varint, and then precisely
// RemainingLength body bytes. It maintains a single cursor throughout —
// the source's recv_packet read the remaining-length bytes into one
// buffer but then read the body using a pointer that had already
// advanced past it, corrupting the body read; ReadPacket never lets two
// views of the same bytes coexist.
//
// If maxSize > 0 and the decoded remaining length exceeds it,
// ErrPacketTooLarge is returned after the length bytes are consumed but
// before the body is read, matching spec.md §4.E step 4.
func ReadPacket(r io.Reader, maxSize int) (FixedHeader, []byte, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return FixedHeader{}, nil, err
	}

	h, err := DecodeFixedHeaderByte(first[0])
	if err != nil {
		return FixedHeader{}, nil, err
	}

	lenBuf := make([]byte, 0, 4)
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return FixedHeader{}, nil, err
		}
		lenBuf = append(lenBuf, b[0])
		if b[0]&0x80 == 0 {
			break
		}
		if len(lenBuf) == 4 {
			return FixedHeader{}, nil, ErrMalformedLength
		}
	}

	remaining, _, err := DecodeRemainingLength(lenBuf)
	if err != nil {
		return FixedHeader{}, nil, err
	}
	h.RemainingLength = remaining

	if maxSize > 0 && remaining > maxSize {
		return h, nil, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, remaining, maxSize)
	}

	body := make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return FixedHeader{}, nil, err
		}
	}
	return h, body, nil
}
