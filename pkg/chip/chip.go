package chip

import (
	"errors"
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

// Registers used by the diagnostics.
const (
	ChipIDAddr = uint32(0x10054d20)

	regAONReset     = uint32(0x10058094)
	aonCount        = 2
	regAONLatch     = uint32(0x1005807c)
	aonLatchMask    = uint32(0x1)
	regMACBoot      = uint32(0x10054024)
	macBootValue    = uint32(0x00100000)
	regClockControl = uint32(0x1005406c)
	clockValue      = uint32(0xef)
	regHostIRQ      = uint32(0x02000000)

	latchDelay = 5 * time.Millisecond
)

// Device is the direct access part of the dispatcher.
type Device interface {
	RegRead(addr uint32) (uint32, error)
	RegWrite(addr uint32, value uint32) error
	MemRead(buff *wire.Buffer, addr uint32) error
	MemWrite(buff *wire.Buffer, addr uint32) error
	RawReadAlloc(size int) (*wire.Buffer, error)
	RawWriteAlloc(size int) (*wire.Buffer, error)
}

// MismatchError reports the first word that didn't read back as written.
type MismatchError struct {
	Addr uint32
	Want uint32
	Got  uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("readback mismatch at 0x%08x: wrote 0x%08x, read 0x%08x", e.Addr, e.Want, e.Got)
}

var ErrNotDirect = errors.New("transport has no direct chip access")

type Chip struct {
	dev   Device
	log   types.Logger
	sleep func(time.Duration)
}

func New(dev Device, log types.Logger) *Chip {
	return &Chip{
		dev:   dev,
		log:   log,
		sleep: time.Sleep,
	}
}

// ID returns the chip id register.
func (c *Chip) ID() (uint32, error) {
	return c.dev.RegRead(ChipIDAddr)
}

func (c *Chip) writeRegs(regs ...uint32) error {
	for i := 0; i < len(regs); i += 2 {
		err := c.dev.RegWrite(regs[i], regs[i+1])
		if err != nil {
			return err
		}
	}
	return nil
}

// SoftReset restarts the chip by pulsing the always-on latch and reloading the
// boot address.
func (c *Chip) SoftReset() error {
	for i := uint32(0); i < aonCount; i++ {
		err := c.dev.RegWrite(regAONReset+i*4, 0)
		if err != nil {
			return err
		}
	}

	latch, err := c.dev.RegRead(regAONLatch)
	if err != nil {
		return err
	}
	for _, v := range []uint32{latch &^ aonLatchMask, latch | aonLatchMask, latch &^ aonLatchMask} {
		err = c.dev.RegWrite(regAONLatch, v)
		if err != nil {
			return err
		}
		c.sleep(latchDelay)
	}

	err = c.writeRegs(
		regMACBoot, macBootValue,
		regClockControl, clockValue,
		regHostIRQ, 1,
	)
	if c.log != nil {
		c.log.Debug().Uint32("latch", latch).Err(err).Msg("soft reset")
	}
	return err
}
