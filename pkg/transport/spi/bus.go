package spi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/loopholelabs/wlanctl/pkg/sdio"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

var ErrNoResponse = errors.New("no response from chip")
var ErrDataRejected = errors.New("data block rejected")
var ErrStillBusy = errors.New("chip busy")

type R1Error struct {
	Cmd byte
	R1  byte
}

func (e *R1Error) Error() string {
	return fmt.Sprintf("CMD%d failed with response 0x%02x", e.Cmd, e.R1)
}

// bus speaks SDIO in SPI mode over a link and tracks the backplane window.
type bus struct {
	link        Link
	window      uint32
	windowValid bool
	token       [sdio.CmdTokenLen]byte
	one         [1]byte
}

func newBus(link Link) *bus {
	return &bus{link: link}
}

func (b *bus) readByte() (byte, error) {
	err := b.link.Transfer(nil, b.one[:], false, false)
	return b.one[0], err
}

// release clocks one idle byte with chip select released.
func (b *bus) release() error {
	return b.link.Transfer(nil, b.one[:], false, true)
}

// poll clocks until the chip drives something other than skip.
func (b *bus) poll(skip byte) (byte, error) {
	for i := 0; i < sdio.MaxPollCycles; i++ {
		v, err := b.readByte()
		if err != nil {
			return 0, err
		}
		if v != skip {
			return v, nil
		}
	}
	return 0, ErrNoResponse
}

// command sends a command token with chip select asserted and waits for R1.
func (b *bus) command(cmd sdio.Command) error {
	cmd.Encode(b.token[:])
	err := b.link.Transfer(b.token[:], nil, true, false)
	if err != nil {
		return err
	}
	r1, err := b.poll(sdio.Idle)
	if err != nil {
		return err
	}
	if r1 != sdio.R1Ok {
		return &R1Error{Cmd: cmd.Index, R1: r1}
	}
	return nil
}

func (b *bus) cmd52Write(addr uint32, val byte) error {
	err := b.command(sdio.CMD52(true, sdio.FuncBackplane, addr, val))
	if err != nil {
		_ = b.release()
		return err
	}
	// R5 carries the register value back
	return b.release()
}

// setWindow points the 64k backplane window at addr, skipping bytes already set.
func (b *bus) setWindow(addr uint32) error {
	base := addr &^ sdio.WindowMask
	if b.windowValid && b.window == base {
		return nil
	}
	if !b.windowValid || (b.window^base)&0x00ff0000 != 0 {
		err := b.cmd52Write(sdio.RegWindowMid, byte(base>>16))
		if err != nil {
			b.windowValid = false
			return err
		}
	}
	if !b.windowValid || (b.window^base)&0xff000000 != 0 {
		err := b.cmd52Write(sdio.RegWindowHigh, byte(base>>24))
		if err != nil {
			b.windowValid = false
			return err
		}
	}
	b.window = base
	b.windowValid = true
	return nil
}

func (b *bus) invalidate() {
	b.windowValid = false
}

// frameRun runs fn on the framed region for buff[off:off+n], restoring the
// neighbouring bytes the framing overwrote.
func frameRun(buff *wire.Buffer, off int, n int, fn func(frame []byte) error) error {
	frame, err := buff.Frame(off, n)
	if err != nil {
		return err
	}
	var saved [headLen + tailLen]byte
	saved[0] = frame[0]
	copy(saved[headLen:], frame[headLen+n:])
	err = fn(frame)
	frame[0] = saved[0]
	copy(frame[headLen+n:], saved[headLen:])
	return err
}

func (b *bus) writeRun(frame []byte, token byte) error {
	n := len(frame) - headLen - tailLen
	frame[0] = token
	crc := sdio.CRC16(frame[headLen : headLen+n])
	binary.BigEndian.PutUint16(frame[headLen+n:], crc)

	err := b.link.Transfer(frame, nil, false, false)
	if err != nil {
		return err
	}
	resp, err := b.poll(sdio.Idle)
	if err != nil {
		return err
	}
	if resp&sdio.DataRespMask != sdio.DataAccepted {
		return fmt.Errorf("%w: 0x%02x", ErrDataRejected, resp)
	}
	_, err = b.poll(sdio.Busy)
	if errors.Is(err, ErrNoResponse) {
		return ErrStillBusy
	}
	return err
}

func (b *bus) readRun(frame []byte) error {
	n := len(frame) - headLen - tailLen
	token, err := b.poll(sdio.Idle)
	if err != nil {
		return err
	}
	if token != sdio.TokenStartBlock {
		return fmt.Errorf("unexpected data token 0x%02x", token)
	}
	err = b.link.Transfer(nil, frame[headLen:], false, false)
	if err != nil {
		return err
	}
	crc := binary.BigEndian.Uint16(frame[headLen+n:])
	if crc != sdio.CRC16(frame[headLen:headLen+n]) {
		return sdio.ErrBadCRC
	}
	return nil
}

// transfer moves one chunk, which must not cross a window boundary.
func (b *bus) transfer(buff *wire.Buffer, c Chunk, write bool) error {
	err := b.setWindow(c.Addr)
	if err != nil {
		return err
	}

	count := c.Size
	if c.BlockMode() {
		count = c.Blocks
	}
	err = b.command(sdio.CMD53(write, sdio.FuncMemory, c.Addr&sdio.WindowMask, c.BlockMode(), count))
	if err != nil {
		_ = b.release()
		return err
	}

	runs, size := 1, c.Size
	if c.BlockMode() {
		runs, size = c.Blocks, sdio.BlockSize
	}
	for r := 0; r < runs; r++ {
		off := c.Offset + r*size
		err = frameRun(buff, off, size, func(frame []byte) error {
			if !write {
				return b.readRun(frame)
			}
			token := byte(sdio.TokenStartBlock)
			if c.BlockMode() {
				token = sdio.TokenStartBlockWrite
			}
			return b.writeRun(frame, token)
		})
		if err != nil {
			_ = b.release()
			return err
		}
	}
	return b.release()
}
