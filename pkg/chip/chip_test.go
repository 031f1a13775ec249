package chip_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/chip"
	"github.com/loopholelabs/wlanctl/pkg/chip/emulator"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/transport/mock"
	"github.com/loopholelabs/wlanctl/pkg/transport/spi"
	"github.com/loopholelabs/wlanctl/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChip(t *testing.T) (*chip.Chip, *emulator.Chip, *transport.Transport) {
	emu := emulator.New()
	tr := transport.New(nil, transport.WithBackend(spi.Name, func(log types.Logger) transport.Backend {
		return spi.NewWithLink(log, emu)
	}))
	require.NoError(t, tr.Parse("", "", ""))
	require.NoError(t, tr.Init())
	t.Cleanup(func() {
		_ = tr.Deinit()
	})
	return chip.New(tr, nil), emu, tr
}

func TestPattern(t *testing.T) {
	data := make([]byte, 8)
	chip.Pattern(data, 0x23450000)
	assert.Equal(t, []byte{0x00, 0x00, 0x45, 0x23, 0x04, 0x00, 0x45, 0x23}, data)

	// Offsets above 64KB wrap in the low half
	data = make([]byte, 0x10008)
	chip.Pattern(data, 0x789a0000)
	assert.Equal(t, []byte{0x04, 0x00, 0x9a, 0x78}, data[0x10004:0x10008])
}

func TestChipID(t *testing.T) {
	c, emu, _ := setupChip(t)
	emu.Poke32(chip.ChipIDAddr, 0x00000306)

	id, err := c.ID()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x306), id)
}

func TestTransportTest(t *testing.T) {
	c, emu, tr := setupChip(t)
	emu.Poke32(chip.ChipIDAddr, 0x00000306)

	var results []chip.TestResult
	err := c.TransportTest(func(r chip.TestResult) {
		results = append(results, r)
	})
	require.NoError(t, err)
	// chip id, registers, then every memory pass
	require.Len(t, results, 2+len(chip.MemTests))
	assert.Equal(t, "chip id 0x00000306", results[0].Name)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	// Every one of the six banks holds its own value
	for i := uint32(0); i < 6; i++ {
		assert.Equal(t, 0x12340000+i, emu.Peek32(chip.IMEMBank0+i*0x10000))
	}
	assert.NotZero(t, tr.GetMetrics().MemWrites)
	assert.Zero(t, tr.GetMetrics().Errors)
}

func TestMemTestMismatch(t *testing.T) {
	c, emu, _ := setupChip(t)

	// Corrupt everything the test writes
	emu.OnWrite(func(addr uint32, data []byte) {
		for i := range data {
			data[i] = ^data[i]
		}
		emu.Memory().WriteAt(data, addr)
	})

	err := c.MemTest(chip.MemTests[0])
	var me *chip.MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, chip.IMEMBank0, me.Addr)
	assert.Equal(t, uint32(0x23450000), me.Want)
}

func TestTransportTestNoDirectAccess(t *testing.T) {
	m := mock.New(nil)
	tr := transport.New(nil, transport.WithBackend("mock", mock.Factory(m)))
	require.NoError(t, tr.Parse("", "", ""))
	require.NoError(t, tr.Init())
	defer tr.Deinit()

	var results []chip.TestResult
	err := chip.New(tr, nil).TransportTest(func(r chip.TestResult) {
		results = append(results, r)
	})
	assert.ErrorIs(t, err, transport.ErrUnsupported)
	require.Len(t, results, 1)
	assert.Equal(t, "chip id", results[0].Name)
}

// aliasedDevice only decodes the low 16 address bits, so every bank lands on
// the same registers.
type aliasedDevice struct {
	regs   map[uint32]uint32
	writes []uint32
}

func (d *aliasedDevice) RegRead(addr uint32) (uint32, error) {
	return d.regs[addr&0xffff], nil
}

func (d *aliasedDevice) RegWrite(addr uint32, value uint32) error {
	d.writes = append(d.writes, addr)
	d.regs[addr&0xffff] = value
	return nil
}

func (d *aliasedDevice) MemRead(buff *wire.Buffer, addr uint32) error {
	return transport.ErrUnsupported
}

func (d *aliasedDevice) MemWrite(buff *wire.Buffer, addr uint32) error {
	return transport.ErrUnsupported
}

func (d *aliasedDevice) RawReadAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func (d *aliasedDevice) RawWriteAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func TestRegisterTestAliasing(t *testing.T) {
	dev := &aliasedDevice{regs: make(map[uint32]uint32)}

	err := chip.New(dev, nil).RegisterTest()
	var me *chip.MismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, chip.IMEMBank0, me.Addr)
	assert.Equal(t, uint32(0x12340000), me.Want)
	assert.Equal(t, uint32(0x12340005), me.Got)

	assert.Equal(t, []uint32{
		0x00100000, 0x00110000, 0x00120000, 0x00130000, 0x00140000, 0x00150000,
	}, dev.writes)
}

type recorder struct {
	writes []uint32
	values []uint32
}

func TestSoftResetSequence(t *testing.T) {
	c, emu, _ := setupChip(t)
	emu.Poke32(0x1005807c, 0xa0)
	emu.Poke32(0x10058094, 0xffff)
	emu.Poke32(0x10058098, 0xffff)

	rec := &recorder{}
	emu.OnWrite(func(addr uint32, data []byte) {
		rec.writes = append(rec.writes, addr)
		var v uint32
		for i := len(data) - 1; i >= 0; i-- {
			v = v<<8 | uint32(data[i])
		}
		rec.values = append(rec.values, v)
	})

	var slept time.Duration
	chip.SetSleep(c, func(d time.Duration) {
		slept += d
	})

	require.NoError(t, c.SoftReset())
	assert.Equal(t, []uint32{
		0x10058094, 0x10058098,
		0x1005807c, 0x1005807c, 0x1005807c,
		0x10054024, 0x1005406c, 0x02000000,
	}, rec.writes)
	assert.Equal(t, []uint32{
		0, 0,
		0xa0, 0xa1, 0xa0,
		0x00100000, 0xef, 1,
	}, rec.values)
	assert.Equal(t, 15*time.Millisecond, slept)
	assert.Equal(t, uint32(0), emu.Peek32(0x10058094))
}

func TestCopy(t *testing.T) {
	c, emu, _ := setupChip(t)

	src := make([]byte, chip.CopyChunk*2+100)
	chip.Pattern(src, 0x11110000)

	var progress []int
	n, err := c.WriteFrom(bytes.NewReader(src), 0x00200000, func(n int) {
		progress = append(progress, n)
	})
	require.NoError(t, err)
	assert.Equal(t, len(src), n)
	assert.Equal(t, []int{chip.CopyChunk, chip.CopyChunk, 100}, progress)
	assert.Equal(t, uint32(0x11110004), emu.Peek32(0x00200004))

	var out bytes.Buffer
	total := 0
	err = c.ReadTo(&out, 0x00200000, len(src), func(n int) {
		total += n
	})
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes())
	assert.Equal(t, len(src), total)

	out.Reset()
	require.NoError(t, c.ReadTo(&out, 0x00200000, 0, nil))
	assert.Zero(t, out.Len())
}
