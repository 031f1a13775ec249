package spi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/chip/emulator"
	"github.com/loopholelabs/wlanctl/pkg/sdio"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ transport.RegisterAccess = (*SPI)(nil)
var _ transport.MemoryAccess = (*SPI)(nil)
var _ transport.RawAccess = (*SPI)(nil)
var _ transport.Resetter = (*SPI)(nil)

func setupEmulated(t *testing.T) (*SPI, *emulator.Chip) {
	chip := emulator.New()
	s := NewWithLink(nil, chip)
	require.NoError(t, s.Parse("", ""))
	require.NoError(t, s.Init())
	t.Cleanup(func() {
		_ = s.Deinit()
	})
	return s, chip
}

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7) ^ seed
	}
	return data
}

func TestRegisterAccess(t *testing.T) {
	s, chip := setupEmulated(t)
	chip.Poke32(0x10054d20, 0x0306)

	val, err := s.RegRead(0x10054d20)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0306), val)
	assert.Equal(t, uint32(0x10050000), chip.Window())

	err = s.RegWrite(0x00100000, 0x12340000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12340000), chip.Peek32(0x00100000))

	val, err = s.RegRead(0x00100000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12340000), val)
}

func TestRegisterUnaligned(t *testing.T) {
	s, _ := setupEmulated(t)

	_, err := s.RegRead(0x10054d21)
	assert.ErrorIs(t, err, ErrUnaligned)
	assert.Equal(t, transport.CodeSPI, transport.Code(err))

	err = s.RegWrite(0x10054d22, 1)
	assert.ErrorIs(t, err, ErrUnaligned)
}

func TestMemoryTransferSizes(t *testing.T) {
	s, chip := setupEmulated(t)

	for i, size := range []int{4, 64, 512, 768, 1024, 1280, 65536 + 768} {
		addr := uint32(0x00100000)
		data := pattern(size, byte(i))

		wb, err := s.WriteAlloc(size)
		require.NoError(t, err)
		copy(wb.Bytes(), data)
		require.NoError(t, s.MemWrite(wb, addr))
		// Framing must not disturb the caller's data
		assert.Equal(t, data, wb.Bytes())

		check := make([]byte, size)
		chip.Memory().ReadAt(check, addr)
		assert.Equal(t, data, check)

		rb, err := s.ReadAlloc(size)
		require.NoError(t, err)
		require.NoError(t, s.MemRead(rb, addr))
		assert.Equal(t, data, rb.Bytes())

		wb.Free()
		rb.Free()
	}
}

func TestMemoryAcrossWindow(t *testing.T) {
	s, chip := setupEmulated(t)

	data := pattern(768, 0x5a)
	wb, err := s.WriteAlloc(len(data))
	require.NoError(t, err)
	copy(wb.Bytes(), data)
	require.NoError(t, s.MemWrite(wb, 0x0010ff00))

	check := make([]byte, len(data))
	chip.Memory().ReadAt(check, 0x0010ff00)
	assert.Equal(t, data, check)

	rb, err := s.ReadAlloc(len(data))
	require.NoError(t, err)
	require.NoError(t, s.MemRead(rb, 0x0010ff00))
	assert.Equal(t, data, rb.Bytes())
	assert.Equal(t, uint32(0x00110000), chip.Window())
}

func TestUnframedBuffer(t *testing.T) {
	s, chip := setupEmulated(t)

	buff, err := wire.NewBuffer(0, 600, 0)
	require.NoError(t, err)
	data := pattern(600, 1)
	copy(buff.Bytes(), data)
	require.NoError(t, s.MemWrite(buff, 0x80100000))

	check := make([]byte, 600)
	chip.Memory().ReadAt(check, 0x80100000)
	assert.Equal(t, data, check)

	out, err := wire.NewBuffer(0, 600, 0)
	require.NoError(t, err)
	require.NoError(t, s.MemRead(out, 0x80100000))
	assert.Equal(t, data, out.Bytes())
}

func TestWindowCached(t *testing.T) {
	s, chip := setupEmulated(t)

	_, err := s.RegRead(0x00100000)
	require.NoError(t, err)
	before := chip.GetMetrics().Commands

	// Same window, so a single CMD53 each
	_, err = s.RegRead(0x00100004)
	require.NoError(t, err)
	_, err = s.RegRead(0x0010fffc)
	require.NoError(t, err)
	assert.Equal(t, before+2, chip.GetMetrics().Commands)

	// Only the mid byte changes
	_, err = s.RegRead(0x00110000)
	require.NoError(t, err)
	assert.Equal(t, before+4, chip.GetMetrics().Commands)
}

func TestReadCRCError(t *testing.T) {
	s, chip := setupEmulated(t)

	chip.CorruptReads(1)
	_, err := s.RegRead(0x00100000)
	assert.ErrorIs(t, err, sdio.ErrBadCRC)
	assert.Equal(t, transport.CodeSPI, transport.Code(err))

	// The bus recovers on the next transaction
	_, err = s.RegRead(0x00100000)
	assert.NoError(t, err)
}

func TestRawAccess(t *testing.T) {
	s, _ := setupEmulated(t)

	rx, err := s.ReadAlloc(4)
	require.NoError(t, err)
	require.NoError(t, s.RawRead(rx, true, true))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, rx.Bytes())

	tx, err := s.WriteAlloc(8)
	require.NoError(t, err)
	assert.Error(t, s.RawReadWrite(tx, rx, true, true))
}

func TestNotInitialised(t *testing.T) {
	s := NewWithLink(nil, emulator.New())
	_, err := s.RegRead(0)
	assert.ErrorIs(t, err, ErrNotOpen)

	buff, err := s.ReadAlloc(4)
	require.NoError(t, err)
	assert.ErrorIs(t, s.RawRead(buff, true, true), ErrNotOpen)
}

func TestClosedLink(t *testing.T) {
	chip := emulator.New()
	s := NewWithLink(nil, chip)
	require.NoError(t, s.Init())
	require.NoError(t, chip.Close())

	_, err := s.RegRead(0)
	assert.True(t, errors.Is(err, emulator.ErrClosed))
}

func TestResetGPIO(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gpio5"), 0755))
	for _, f := range []string{"gpio5/direction", "gpio5/value", "export", "unexport"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0644))
	}

	s := NewWithLink(nil, emulator.New())
	s.gpioRoot = root
	require.NoError(t, s.Parse("", "reset_gpio=5,reset_ms=1"))
	require.NoError(t, s.Init())
	assert.True(t, s.HasReset())
	assert.Equal(t, time.Millisecond, s.Config().ResetTime)

	require.NoError(t, s.ResetDevice())
	val, err := os.ReadFile(filepath.Join(root, "gpio5", "value"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(val))

	s2, _ := setupEmulated(t)
	assert.False(t, s2.HasReset())
	assert.Error(t, s2.ResetDevice())
}

func TestNoSendThroughDispatcher(t *testing.T) {
	chip := emulator.New()
	tr := transport.New(nil, transport.WithBackend(Name, func(log types.Logger) transport.Backend {
		return NewWithLink(log, chip)
	}))
	require.NoError(t, tr.Parse(Name, "", ""))
	require.NoError(t, tr.Init())
	defer tr.Deinit()

	assert.True(t, tr.Direct())
	assert.False(t, tr.CanSend())

	cmd, err := tr.CmdAlloc(4)
	require.NoError(t, err)
	resp, err := tr.RespAlloc(4)
	require.NoError(t, err)
	err = tr.Send(cmd, resp)
	assert.ErrorIs(t, err, transport.ErrUnsupported)
	assert.Equal(t, transport.CodeGeneric, transport.Code(err))
}
