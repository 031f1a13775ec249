package sdio

import (
	"encoding/binary"
	"errors"
)

// SDIO in SPI mode, as spoken between the host and the chip.

const (
	CmdIORWDirect   = 52
	CmdIORWExtended = 53

	CmdTokenLen = 6
	BlockSize   = 512
	MaxBlocks   = 511

	// Function 1 holds the backplane window registers, function 2 is memory.
	FuncBackplane = 1
	FuncMemory    = 2

	RegWindowMid  = 0x10000
	RegWindowHigh = 0x10001

	WindowSize = 0x10000
	WindowMask = WindowSize - 1

	TokenStartBlock      = 0xFE
	TokenStartBlockWrite = 0xFC

	DataAccepted  = 0x05
	DataCRCError  = 0x0B
	DataWriteErr  = 0x0D
	DataRespMask  = 0x1F
	Idle          = 0xFF
	Busy          = 0x00
	R1Ok          = 0x00
	R1Illegal     = 0x04
	R1CRCError    = 0x08
	R1ParamError  = 0x40
	R1Unready     = 0x80
	MaxPollCycles = 64
)

var ErrBadToken = errors.New("sdio: bad command token")
var ErrBadCRC = errors.New("sdio: crc mismatch")

var crc7Table [256]byte

func init() {
	for i := 0; i < 256; i++ {
		c := byte(i)
		for j := 0; j < 8; j++ {
			if c&0x80 != 0 {
				c = (c << 1) ^ 0x12 // 0x09 << 1
			} else {
				c <<= 1
			}
		}
		crc7Table[i] = c
	}
}

// CRC7 returns the 7 bit command CRC, aligned to bits 7..1.
func CRC7(data []byte) byte {
	c := byte(0)
	for _, b := range data {
		c = crc7Table[c^b]
	}
	return c
}

// CRC16 is CCITT/XMODEM, used on data blocks.
func CRC16(data []byte) uint16 {
	c := uint16(0)
	for _, b := range data {
		c ^= uint16(b) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = (c << 1) ^ 0x1021
			} else {
				c <<= 1
			}
		}
	}
	return c
}

type Command struct {
	Index byte
	Arg   uint32
}

func (c Command) Encode(buff []byte) {
	buff[0] = 0x40 | (c.Index & 0x3f)
	binary.BigEndian.PutUint32(buff[1:], c.Arg)
	buff[5] = CRC7(buff[:5]) | 1
}

func DecodeCommand(buff []byte) (Command, error) {
	if len(buff) < CmdTokenLen || buff[0]&0xc0 != 0x40 || buff[5]&1 != 1 {
		return Command{}, ErrBadToken
	}
	if CRC7(buff[:5]) != buff[5]&0xfe {
		return Command{}, ErrBadCRC
	}
	return Command{
		Index: buff[0] & 0x3f,
		Arg:   binary.BigEndian.Uint32(buff[1:]),
	}, nil
}

/**
 * CMD52 argument
 *   [31]    write
 *   [30:28] function
 *   [27]    read after write
 *   [25:9]  register address
 *   [7:0]   data
 */
func CMD52(write bool, fn uint8, addr uint32, data byte) Command {
	arg := uint32(fn&7)<<28 | (addr&0x1ffff)<<9 | uint32(data)
	if write {
		arg |= 1 << 31
	}
	return Command{Index: CmdIORWDirect, Arg: arg}
}

/**
 * CMD53 argument
 *   [31]    write
 *   [30:28] function
 *   [27]    block mode
 *   [26]    incrementing address
 *   [25:9]  address
 *   [8:0]   count (bytes or blocks, 0 means 512 bytes in byte mode)
 */
func CMD53(write bool, fn uint8, addr uint32, block bool, count int) Command {
	arg := uint32(fn&7)<<28 | 1<<26 | (addr&0x1ffff)<<9 | uint32(count)&0x1ff
	if write {
		arg |= 1 << 31
	}
	if block {
		arg |= 1 << 27
	}
	return Command{Index: CmdIORWExtended, Arg: arg}
}

// IOArg is a decoded CMD52 / CMD53 argument.
type IOArg struct {
	Write bool
	Fn    uint8
	Block bool
	Addr  uint32
	Count int
	Data  byte
}

func ParseArg(c Command) IOArg {
	a := IOArg{
		Write: c.Arg&(1<<31) != 0,
		Fn:    uint8(c.Arg>>28) & 7,
		Addr:  (c.Arg >> 9) & 0x1ffff,
	}
	if c.Index == CmdIORWDirect {
		a.Data = byte(c.Arg)
		return a
	}
	a.Block = c.Arg&(1<<27) != 0
	a.Count = int(c.Arg & 0x1ff)
	if !a.Block && a.Count == 0 {
		a.Count = BlockSize
	}
	return a
}

// Bytes returns the number of data bytes a CMD53 moves.
func (a IOArg) Bytes() int {
	if a.Block {
		return a.Count * BlockSize
	}
	return a.Count
}
