package spi

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Link moves bytes on the SPI bus. A nil tx clocks out 0xff, a nil rx discards
// what was clocked in. start asserts chip select first, finish releases it after.
type Link interface {
	Transfer(tx []byte, rx []byte, start bool, finish bool) error
	Close() error
}

// spidev ioctls, see linux/spi/spidev.h
const (
	spiIOCMagic = 'k'

	iocWrite     = 1
	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	spiTransferSize = 32
)

func iow(nr uintptr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | spiIOCMagic<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

var (
	spiIOCWrMode        = iow(1, 1)
	spiIOCWrBitsPerWord = iow(3, 1)
	spiIOCWrMaxSpeedHz  = iow(4, 4)
	spiIOCMessage1      = iow(0, spiTransferSize)
)

// spiTransfer mirrors struct spi_ioc_transfer.
type spiTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

type spidev struct {
	fd      int
	speedHz uint32
	idle    []byte
	scratch []byte
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func openSpidev(conf *Config) (*spidev, error) {
	fd, err := unix.Open(conf.Device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Device, err)
	}
	mode := conf.Mode
	bits := uint8(8)
	speed := conf.SpeedHz
	for _, s := range []struct {
		req uintptr
		arg unsafe.Pointer
	}{
		{spiIOCWrMode, unsafe.Pointer(&mode)},
		{spiIOCWrBitsPerWord, unsafe.Pointer(&bits)},
		{spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		err = ioctl(fd, s.req, s.arg)
		if err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("configure %s: %w", conf.Device, err)
		}
	}
	return &spidev{fd: fd, speedHz: conf.SpeedHz}, nil
}

func (s *spidev) Transfer(tx []byte, rx []byte, start bool, finish bool) error {
	n := max(len(tx), len(rx))
	if n == 0 {
		return nil
	}
	if tx != nil && rx != nil && len(tx) != len(rx) {
		return fmt.Errorf("spidev: tx %d and rx %d differ", len(tx), len(rx))
	}
	if tx == nil {
		if len(s.idle) < n {
			s.idle = make([]byte, n)
			for i := range s.idle {
				s.idle[i] = 0xff
			}
		}
		tx = s.idle[:n]
	}
	if rx == nil {
		if len(s.scratch) < n {
			s.scratch = make([]byte, n)
		}
		rx = s.scratch[:n]
	}

	xfer := spiTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(n),
		speedHz:     s.speedHz,
		bitsPerWord: 8,
	}
	// spidev asserts chip select for every message, cs_change keeps it held
	// after the last transfer.
	if !finish {
		xfer.csChange = 1
	}
	return ioctl(s.fd, spiIOCMessage1, unsafe.Pointer(&xfer))
}

func (s *spidev) Close() error {
	return unix.Close(s.fd)
}
