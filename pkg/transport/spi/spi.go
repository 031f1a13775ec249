package spi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/chip/emulator"
	"github.com/loopholelabs/wlanctl/pkg/gpio"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

const Name = "spi"

// Every buffer reserves room for the data start token and the CRC16, so blocks
// can be framed in place.
const (
	headLen = 1
	tailLen = 2
)

var ErrUnaligned = errors.New("register address not 4 byte aligned")
var ErrNotOpen = errors.New("spi link not open")

// SPI talks straight to the chip over an SDIO in SPI mode bus.
type SPI struct {
	log      types.Logger
	conf     *Config
	link     Link
	bus      *bus
	reset    *gpio.Sysfs
	gpioRoot string
	openLink func(conf *Config) (Link, error)
}

func openLink(conf *Config) (Link, error) {
	if conf.Link == LinkEmulator {
		return emulator.New(), nil
	}
	dev, err := openSpidev(conf)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func New(log types.Logger) transport.Backend {
	return &SPI{
		log:      log,
		conf:     DefaultConfig(),
		openLink: openLink,
	}
}

// NewWithLink returns a backend that always uses link.
func NewWithLink(log types.Logger, link Link) *SPI {
	return &SPI{
		log:  log,
		conf: DefaultConfig(),
		openLink: func(*Config) (Link, error) {
			return link, nil
		},
	}
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return transport.NewError(transport.CodeSPI, op, err)
}

func (s *SPI) Parse(iface string, config string) error {
	conf, err := ParseConfig(config)
	if err != nil {
		return fail("parse", err)
	}
	s.conf = conf
	return nil
}

func (s *SPI) Config() *Config {
	return s.conf
}

// Link returns the open byte link, or nil before Init.
func (s *SPI) Link() Link {
	return s.link
}

func (s *SPI) Init() error {
	link, err := s.openLink(s.conf)
	if err != nil {
		return fail("init", err)
	}
	s.link = link
	s.bus = newBus(link)
	if s.conf.ResetGPIO >= 0 {
		s.reset = gpio.NewSysfs(s.gpioRoot, s.conf.ResetGPIO)
	}
	if s.log != nil {
		s.log.Debug().
			Str("device", s.conf.Device).
			Str("link", s.conf.Link).
			Uint32("speed", s.conf.SpeedHz).
			Int("reset_gpio", s.conf.ResetGPIO).
			Msg("spi ready")
	}
	return nil
}

func (s *SPI) Deinit() error {
	if s.link == nil {
		return nil
	}
	err := s.link.Close()
	s.link = nil
	s.bus = nil
	return fail("deinit", err)
}

func (s *SPI) WriteAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(headLen, size, tailLen)
}

func (s *SPI) ReadAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(headLen, size, tailLen)
}

// framed returns buff if it carries the framing reservation, otherwise a copy that does.
func (s *SPI) framed(buff *wire.Buffer) (*wire.Buffer, bool, error) {
	if buff.Head() >= headLen && buff.Tail() >= tailLen {
		return buff, false, nil
	}
	tmp, err := wire.NewBuffer(headLen, buff.Len(), tailLen)
	if err != nil {
		return nil, false, err
	}
	copy(tmp.Bytes(), buff.Bytes())
	return tmp, true, nil
}

func (s *SPI) mem(op string, buff *wire.Buffer, addr uint32, write bool) error {
	if s.bus == nil {
		return fail(op, ErrNotOpen)
	}
	if buff.Freed() || buff.Len() == 0 {
		return fail(op, fmt.Errorf("%w: empty buffer", wire.ErrInvalidSize))
	}
	fb, tmp, err := s.framed(buff)
	if err != nil {
		return fail(op, err)
	}
	if tmp {
		defer fb.Free()
	}

	chunks := Chunks(addr, fb.Len())
	for {
		c, ok := chunks.Next()
		if !ok {
			break
		}
		err = s.bus.transfer(fb, c, write)
		if s.log != nil {
			s.log.Trace().
				Str("op", op).
				Str("addr", fmt.Sprintf("0x%08x", c.Addr)).
				Int("size", c.Size).
				Int("blocks", c.Blocks).
				Err(err).
				Msg("chunk")
		}
		if err != nil {
			s.bus.invalidate()
			return fail(op, err)
		}
	}
	if tmp && !write {
		copy(buff.Bytes(), fb.Bytes())
	}
	return nil
}

func (s *SPI) MemRead(buff *wire.Buffer, addr uint32) error {
	return s.mem("mem_read", buff, addr, false)
}

func (s *SPI) MemWrite(buff *wire.Buffer, addr uint32) error {
	return s.mem("mem_write", buff, addr, true)
}

func (s *SPI) RegRead(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, fail("reg_read", ErrUnaligned)
	}
	buff, err := s.ReadAlloc(4)
	if err != nil {
		return 0, fail("reg_read", err)
	}
	defer buff.Free()
	err = s.mem("reg_read", buff, addr, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buff.Bytes()), nil
}

func (s *SPI) RegWrite(addr uint32, value uint32) error {
	if addr&3 != 0 {
		return fail("reg_write", ErrUnaligned)
	}
	buff, err := s.WriteAlloc(4)
	if err != nil {
		return fail("reg_write", err)
	}
	defer buff.Free()
	binary.LittleEndian.PutUint32(buff.Bytes(), value)
	return s.mem("reg_write", buff, addr, true)
}

func (s *SPI) RawRead(rx *wire.Buffer, start bool, finish bool) error {
	if s.link == nil {
		return fail("raw_read", ErrNotOpen)
	}
	s.bus.invalidate()
	return fail("raw_read", s.link.Transfer(nil, rx.Bytes(), start, finish))
}

func (s *SPI) RawWrite(tx *wire.Buffer, start bool, finish bool) error {
	if s.link == nil {
		return fail("raw_write", ErrNotOpen)
	}
	s.bus.invalidate()
	return fail("raw_write", s.link.Transfer(tx.Bytes(), nil, start, finish))
}

func (s *SPI) RawReadWrite(tx *wire.Buffer, rx *wire.Buffer, start bool, finish bool) error {
	if s.link == nil {
		return fail("raw_read_write", ErrNotOpen)
	}
	if tx.Len() != rx.Len() {
		return fail("raw_read_write", fmt.Errorf("%w: tx %d rx %d", wire.ErrInvalidSize, tx.Len(), rx.Len()))
	}
	s.bus.invalidate()
	return fail("raw_read_write", s.link.Transfer(tx.Bytes(), rx.Bytes(), start, finish))
}

func (s *SPI) HasReset() bool {
	return s.conf.ResetGPIO >= 0
}

func (s *SPI) ResetDevice() error {
	if s.reset == nil {
		return fail("reset", errors.New("no reset gpio configured"))
	}
	if s.bus != nil {
		s.bus.invalidate()
	}
	return fail("reset", s.reset.Pulse(s.conf.ResetTime))
}
