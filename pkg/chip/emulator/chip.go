package emulator

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/loopholelabs/wlanctl/pkg/sdio"
)

var ErrClosed = errors.New("emulator: link closed")

type state int

const (
	stateIdle state = iota
	stateCommand
	stateWriteToken
	stateWriteData
)

// Chip models the SDIO in SPI mode slave of the chip, backed by sparse memory.
// It satisfies the byte link used by the spi transport.
type Chip struct {
	lock   sync.Mutex
	mem    *Memory
	window uint32
	fn1    map[uint32]byte

	state    state
	cmd      []byte
	out      []byte
	write    sdio.IOArg
	writeTo  uint32
	left     int
	data     []byte
	selected bool

	onWrite func(addr uint32, data []byte)

	corruptReads atomic.Int32
	closed       atomic.Bool

	metricCommands  uint64
	metricCRCErrors uint64
	metricBytesIn   uint64
	metricBytesOut  uint64
}

type MetricsSnapshot struct {
	Commands  uint64
	CRCErrors uint64
	BytesIn   uint64
	BytesOut  uint64
}

func New() *Chip {
	return &Chip{
		mem: NewMemory(),
		fn1: make(map[uint32]byte),
	}
}

func (c *Chip) Memory() *Memory {
	return c.mem
}

// OnWrite registers a hook called after every memory write the host performs.
func (c *Chip) OnWrite(fn func(addr uint32, data []byte)) {
	c.lock.Lock()
	c.onWrite = fn
	c.lock.Unlock()
}

// CorruptReads makes the next n data blocks sent to the host carry a bad CRC.
func (c *Chip) CorruptReads(n int) {
	c.corruptReads.Store(int32(n))
}

func (c *Chip) Poke32(addr uint32, val uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, val)
	c.mem.WriteAt(b, addr)
}

func (c *Chip) Peek32(addr uint32) uint32 {
	b := make([]byte, 4)
	c.mem.ReadAt(b, addr)
	return binary.LittleEndian.Uint32(b)
}

func (c *Chip) Window() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.window
}

func (c *Chip) Transfer(tx []byte, rx []byte, start bool, finish bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	n := max(len(tx), len(rx))

	c.lock.Lock()
	defer c.lock.Unlock()

	if start {
		c.state = stateIdle
		c.out = c.out[:0]
		c.cmd = c.cmd[:0]
		c.selected = true
	}
	for i := 0; i < n; i++ {
		out := byte(sdio.Idle)
		if len(c.out) > 0 {
			out = c.out[0]
			c.out = c.out[1:]
			c.metricBytesOut++
		}
		if !c.selected {
			// Not addressed, the bus floats high.
			out = sdio.Idle
		}
		if rx != nil {
			rx[i] = out
		}
		if !c.selected {
			continue
		}
		in := byte(sdio.Idle)
		if tx != nil {
			in = tx[i]
		}
		c.metricBytesIn++
		c.feed(in)
	}
	if finish {
		c.selected = false
	}
	return nil
}

func (c *Chip) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Chip) respond(b ...byte) {
	c.out = append(c.out, b...)
}

func (c *Chip) feed(in byte) {
	switch c.state {
	case stateIdle:
		if in&0xc0 == 0x40 {
			c.cmd = append(c.cmd[:0], in)
			c.state = stateCommand
		}

	case stateCommand:
		c.cmd = append(c.cmd, in)
		if len(c.cmd) == sdio.CmdTokenLen {
			c.state = stateIdle
			c.command()
		}

	case stateWriteToken:
		if in == sdio.Idle {
			return
		}
		want := byte(sdio.TokenStartBlock)
		if c.write.Block {
			want = sdio.TokenStartBlockWrite
		}
		if in != want {
			c.respond(sdio.DataWriteErr)
			c.state = stateIdle
			return
		}
		c.data = c.data[:0]
		c.state = stateWriteData

	case stateWriteData:
		c.data = append(c.data, in)
		size := c.write.Count
		if c.write.Block {
			size = sdio.BlockSize
		}
		if len(c.data) < size+2 {
			return
		}
		payload := c.data[:size]
		crc := binary.BigEndian.Uint16(c.data[size:])
		if crc != sdio.CRC16(payload) {
			c.metricCRCErrors++
			c.respond(sdio.DataCRCError)
			c.state = stateIdle
			return
		}
		c.mem.WriteAt(payload, c.writeTo)
		if c.onWrite != nil {
			c.onWrite(c.writeTo, append([]byte{}, payload...))
		}
		c.writeTo += uint32(size)
		c.respond(sdio.DataAccepted)
		c.left--
		if c.left > 0 {
			c.state = stateWriteToken
		} else {
			c.state = stateIdle
		}
	}
}

func (c *Chip) command() {
	c.metricCommands++
	cmd, err := sdio.DecodeCommand(c.cmd)
	if err != nil {
		c.metricCRCErrors++
		c.respond(sdio.Idle, sdio.R1CRCError)
		return
	}
	arg := sdio.ParseArg(cmd)

	switch cmd.Index {
	case sdio.CmdIORWDirect:
		if arg.Fn != sdio.FuncBackplane {
			c.respond(sdio.Idle, sdio.R1ParamError, 0)
			return
		}
		if arg.Write {
			c.fn1[arg.Addr] = arg.Data
			switch arg.Addr {
			case sdio.RegWindowMid:
				c.window = (c.window &^ 0x00ff0000) | uint32(arg.Data)<<16
			case sdio.RegWindowHigh:
				c.window = (c.window &^ 0xff000000) | uint32(arg.Data)<<24
			}
		}
		c.respond(sdio.Idle, sdio.R1Ok, c.fn1[arg.Addr])

	case sdio.CmdIORWExtended:
		if arg.Fn != sdio.FuncMemory || arg.Count == 0 {
			c.respond(sdio.Idle, sdio.R1ParamError)
			return
		}
		addr := c.window + arg.Addr
		c.respond(sdio.Idle, sdio.R1Ok)
		if arg.Write {
			c.write = arg
			c.writeTo = addr
			c.left = 1
			if arg.Block {
				c.left = arg.Count
			}
			c.state = stateWriteToken
			return
		}
		runs, size := 1, arg.Count
		if arg.Block {
			runs, size = arg.Count, sdio.BlockSize
		}
		for r := 0; r < runs; r++ {
			block := make([]byte, size+2)
			c.mem.ReadAt(block[:size], addr)
			crc := sdio.CRC16(block[:size])
			if c.corruptReads.Load() > 0 {
				c.corruptReads.Add(-1)
				crc ^= 0xffff
			}
			binary.BigEndian.PutUint16(block[size:], crc)
			c.respond(sdio.Idle, sdio.TokenStartBlock)
			c.respond(block...)
			addr += uint32(size)
		}

	default:
		c.respond(sdio.Idle, sdio.R1Illegal)
	}
}

func (c *Chip) GetMetrics() *MetricsSnapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return &MetricsSnapshot{
		Commands:  c.metricCommands,
		CRCErrors: c.metricCRCErrors,
		BytesIn:   c.metricBytesIn,
		BytesOut:  c.metricBytesOut,
	}
}
