package chip

import (
	"encoding/binary"
	"fmt"

	"github.com/loopholelabs/wlanctl/pkg/sdio"
)

// Instruction memory banks used as scratch space by the transport test.
const (
	IMEMBank0    = uint32(0x00100000)
	IMEMBank1    = uint32(0x00110000)
	imemBankStep = uint32(0x10000)
	imemBankLast = uint32(0x00150000)

	regTestBase = uint32(0x12340000)
)

// MemTestCase is one write and readback pass.
type MemTestCase struct {
	Name string
	Addr uint32
	Size int
	Base uint32
}

// MemTests are the passes the transport test runs, sized to cover byte mode,
// block mode, mixed transfers and a window boundary crossing.
var MemTests = []MemTestCase{
	{Name: "bytes", Addr: IMEMBank0, Size: 64, Base: 0x23450000},
	{Name: "bytes bank1", Addr: IMEMBank1, Size: 64, Base: 0x23450000},
	{Name: "single block", Addr: IMEMBank0, Size: sdio.BlockSize, Base: 0x34560000},
	{Name: "block and bytes", Addr: IMEMBank0, Size: sdio.BlockSize + 256, Base: 0x67890000},
	{Name: "2 blocks", Addr: IMEMBank0, Size: 2 * sdio.BlockSize, Base: 0x56780000},
	{Name: "2.5 blocks", Addr: IMEMBank0, Size: 2*sdio.BlockSize + 256, Base: 0x67890000},
	{Name: "across 64KB", Addr: IMEMBank0, Size: sdio.WindowSize + sdio.BlockSize + 256, Base: 0x789a0000},
}

// Pattern fills data with little endian words whose low half is the byte
// offset and whose high half comes from base.
func Pattern(data []byte, base uint32) {
	var word [4]byte
	for i := 0; i < len(data); i += 4 {
		binary.LittleEndian.PutUint32(word[:], (base&0xffff0000)|uint32(i&0xffff))
		copy(data[i:], word[:])
	}
}

// RegisterTest writes a distinct value to the start of every instruction
// memory bank, then reads them all back. Writing every bank first catches banks
// that alias each other.
func (c *Chip) RegisterTest() error {
	val := regTestBase
	for addr := IMEMBank0; addr <= imemBankLast; addr += imemBankStep {
		err := c.dev.RegWrite(addr, val)
		if err != nil {
			return err
		}
		val++
	}

	val = regTestBase
	for addr := IMEMBank0; addr <= imemBankLast; addr += imemBankStep {
		got, err := c.dev.RegRead(addr)
		if err != nil {
			return err
		}
		if got != val {
			return &MismatchError{Addr: addr, Want: val, Got: got}
		}
		val++
	}
	return nil
}

// MemTest writes the test pattern to addr and checks it reads back unchanged.
func (c *Chip) MemTest(tc MemTestCase) error {
	wbuff, err := c.dev.RawWriteAlloc(tc.Size)
	if err != nil {
		return err
	}
	defer wbuff.Free()
	rbuff, err := c.dev.RawReadAlloc(tc.Size)
	if err != nil {
		return err
	}
	defer rbuff.Free()

	want := wbuff.Bytes()
	Pattern(want, tc.Base)

	err = c.dev.MemWrite(wbuff, tc.Addr)
	if err != nil {
		return err
	}
	err = c.dev.MemRead(rbuff, tc.Addr)
	if err != nil {
		return err
	}

	got := rbuff.Bytes()
	for i := 0; i < len(want); i += 4 {
		n := min(4, len(want)-i)
		var w, g [4]byte
		copy(w[:], want[i:i+n])
		copy(g[:], got[i:i+n])
		if w != g {
			return &MismatchError{
				Addr: tc.Addr + uint32(i),
				Want: binary.LittleEndian.Uint32(w[:]),
				Got:  binary.LittleEndian.Uint32(g[:]),
			}
		}
	}
	return nil
}

// TestResult is reported once per stage of TransportTest.
type TestResult struct {
	Name string
	Err  error
}

// TransportTest reads the chip id, then runs the register test and every memory
// pass. It stops at the first failure. report may be nil.
func (c *Chip) TransportTest(report func(TestResult)) error {
	emit := func(name string, err error) error {
		if c.log != nil {
			c.log.Debug().Str("test", name).Err(err).Msg("transport test")
		}
		if report != nil {
			report(TestResult{Name: name, Err: err})
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	id, err := c.ID()
	if err != nil {
		return emit("chip id", err)
	}
	if c.log != nil {
		c.log.Info().Str("chip_id", fmt.Sprintf("0x%08x", id)).Msg("chip id")
	}
	err = emit(fmt.Sprintf("chip id 0x%08x", id), nil)
	if err != nil {
		return err
	}

	err = emit("registers", c.RegisterTest())
	if err != nil {
		return err
	}

	for _, tc := range MemTests {
		err = emit(fmt.Sprintf("memory %s (%d bytes)", tc.Name, tc.Size), c.MemTest(tc))
		if err != nil {
			return err
		}
	}
	return nil
}
