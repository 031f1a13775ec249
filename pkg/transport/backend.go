package transport

import (
	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

// Backend is the capability set every transport provides.
type Backend interface {
	Parse(iface string, config string) error
	Init() error
	Deinit() error
	WriteAlloc(size int) (*wire.Buffer, error)
	ReadAlloc(size int) (*wire.Buffer, error)
}

// Optional capabilities. The dispatcher discovers them by type assertion.

type Sender interface {
	Send(cmd *wire.Buffer, resp *wire.Buffer) error
}

type RegisterAccess interface {
	RegRead(addr uint32) (uint32, error)
	RegWrite(addr uint32, value uint32) error
}

type MemoryAccess interface {
	MemRead(buff *wire.Buffer, addr uint32) error
	MemWrite(buff *wire.Buffer, addr uint32) error
}

// RawAccess moves bytes on the bus as-is. start and finish control chip select.
type RawAccess interface {
	RawRead(rx *wire.Buffer, start bool, finish bool) error
	RawWrite(tx *wire.Buffer, start bool, finish bool) error
	RawReadWrite(tx *wire.Buffer, rx *wire.Buffer, start bool, finish bool) error
}

type Resetter interface {
	ResetDevice() error
	HasReset() bool
}

type Interfacer interface {
	InterfaceName() string
}

type Factory func(log types.Logger) Backend
