package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrShortBuffer = errors.New("wire: buffer shorter than envelope header")
var ErrPayloadTooLarge = errors.New("wire: payload too large")

// HeaderLen is the size of both the command and response envelope headers.
const HeaderLen = 8

const FlagRequest = uint8(1)

/**
 * Command header
 *   [0:2) message id     (le16)
 *   [2:4) payload length (le16)
 *   [4]   flags          (bit0 request)
 *   [5:8) reserved
 *
 * Response header
 *   [0:4) status         (le32, signed)
 *   [4:8) reserved
 */

type CommandHeader struct {
	MessageID  uint16
	PayloadLen uint16
	Flags      uint8
}

func (ch CommandHeader) IsRequest() bool {
	return ch.Flags&FlagRequest == FlagRequest
}

// EncodeRequest writes a request header for id into the front of b. The payload
// length is taken from the buffer's current length.
func EncodeRequest(b *Buffer, id uint16) error {
	d := b.Bytes()
	if len(d) < HeaderLen {
		return ErrShortBuffer
	}
	plen := len(d) - HeaderLen
	if plen > math.MaxUint16 {
		return ErrPayloadTooLarge
	}
	clear(d[:HeaderLen])
	binary.LittleEndian.PutUint16(d[0:], id)
	binary.LittleEndian.PutUint16(d[2:], uint16(plen))
	d[4] = FlagRequest
	return nil
}

func DecodeRequest(b *Buffer) (CommandHeader, error) {
	d := b.Bytes()
	if len(d) < HeaderLen {
		return CommandHeader{}, ErrShortBuffer
	}
	return CommandHeader{
		MessageID:  binary.LittleEndian.Uint16(d[0:]),
		PayloadLen: binary.LittleEndian.Uint16(d[2:]),
		Flags:      d[4],
	}, nil
}

// DecodeResponse returns the firmware status from a response envelope.
func DecodeResponse(b *Buffer) (int32, error) {
	d := b.Bytes()
	if len(d) < HeaderLen {
		return 0, ErrShortBuffer
	}
	return int32(binary.LittleEndian.Uint32(d[0:])), nil
}

func EncodeResponse(b *Buffer, status int32) error {
	d := b.Bytes()
	if len(d) < HeaderLen {
		return ErrShortBuffer
	}
	clear(d[:HeaderLen])
	binary.LittleEndian.PutUint32(d[0:], uint32(status))
	return nil
}
