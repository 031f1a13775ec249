package wire

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("wire: invalid buffer size")
var ErrBufferFreed = errors.New("wire: buffer freed")

// Buffer is a byte region handed to a transport for a single call.
// A backend may reserve framing bytes before (head) and after (tail) the
// logical data so that it can frame a transfer in place.
type Buffer struct {
	memblock []byte
	data     int
	length   int
	tail     int
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// NewBuffer allocates a buffer with size usable bytes and the given framing reservation.
func NewBuffer(head int, size int, tail int) (*Buffer, error) {
	if size <= 0 || head < 0 || tail < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Buffer{
		memblock: make([]byte, head+align4(size)+tail),
		data:     head,
		length:   size,
		tail:     tail,
	}, nil
}

// Free releases the memory. It is safe on a nil buffer and may be called more than once.
func (b *Buffer) Free() {
	if b == nil {
		return
	}
	b.memblock = nil
	b.data = 0
	b.length = 0
	b.tail = 0
}

func (b *Buffer) Freed() bool {
	return b == nil || b.memblock == nil
}

// Cap returns the number of bytes allocated, including framing reservations.
func (b *Buffer) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.memblock)
}

// Usable is the maximum logical length the buffer can carry.
func (b *Buffer) Usable() int {
	if b.Freed() {
		return 0
	}
	return len(b.memblock) - b.data - b.tail
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.length
}

func (b *Buffer) Head() int {
	if b == nil {
		return 0
	}
	return b.data
}

func (b *Buffer) Tail() int {
	if b == nil {
		return 0
	}
	return b.tail
}

// Bytes returns the logical data region.
func (b *Buffer) Bytes() []byte {
	if b.Freed() {
		return nil
	}
	return b.memblock[b.data : b.data+b.length]
}

// SetLen adjusts the logical length without touching the allocation.
func (b *Buffer) SetLen(n int) error {
	if b.Freed() {
		return ErrBufferFreed
	}
	if n < 0 || n > b.Usable() {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidSize, n, b.Usable())
	}
	b.length = n
	return nil
}

// SetPayloadLen sets the length to a full envelope header followed by n payload bytes.
func (b *Buffer) SetPayloadLen(n int) error {
	return b.SetLen(HeaderLen + n)
}

// Payload returns the bytes following the envelope header.
func (b *Buffer) Payload() []byte {
	d := b.Bytes()
	if len(d) < HeaderLen {
		return nil
	}
	return d[HeaderLen:]
}

// Frame returns n bytes of data starting at off, widened by the head and tail
// reservations. Bytes outside [off, off+n) may belong to neighbouring data, so
// callers framing in place must restore them afterwards.
func (b *Buffer) Frame(off int, n int) ([]byte, error) {
	if b.Freed() {
		return nil, ErrBufferFreed
	}
	if off < 0 || n < 0 || off+n > b.length {
		return nil, fmt.Errorf("%w: frame %d+%d outside %d", ErrInvalidSize, off, n, b.length)
	}
	// data is the head reservation, so the frame starts head bytes before off.
	start := off
	end := b.data + off + n + b.tail
	return b.memblock[start:end], nil
}
