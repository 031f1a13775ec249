package sdio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC7(t *testing.T) {
	// CMD0 and CMD8 tokens, as sent by every SD host.
	assert.Equal(t, byte(0x94), CRC7([]byte{0x40, 0, 0, 0, 0}))
	assert.Equal(t, byte(0x86), CRC7([]byte{0x48, 0, 0, 0x01, 0xaa}))
}

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x31c3), CRC16([]byte("123456789")))
	assert.Equal(t, uint16(0), CRC16(nil))
}

func TestCommandToken(t *testing.T) {
	buff := make([]byte, CmdTokenLen)
	cmd := CMD53(true, FuncMemory, 0xfe00, true, 3)
	cmd.Encode(buff)

	assert.Equal(t, byte(0x40|CmdIORWExtended), buff[0])
	assert.Equal(t, byte(1), buff[5]&1)

	cmd2, err := DecodeCommand(buff)
	assert.NoError(t, err)
	assert.Equal(t, cmd, cmd2)

	arg := ParseArg(cmd2)
	assert.True(t, arg.Write)
	assert.True(t, arg.Block)
	assert.Equal(t, uint8(FuncMemory), arg.Fn)
	assert.Equal(t, uint32(0xfe00), arg.Addr)
	assert.Equal(t, 3*BlockSize, arg.Bytes())

	// Corrupt the token
	buff[2] ^= 0x10
	_, err = DecodeCommand(buff)
	assert.ErrorIs(t, err, ErrBadCRC)

	_, err = DecodeCommand([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestDirectArg(t *testing.T) {
	arg := ParseArg(CMD52(true, FuncBackplane, RegWindowHigh, 0x10))
	assert.True(t, arg.Write)
	assert.Equal(t, uint8(FuncBackplane), arg.Fn)
	assert.Equal(t, uint32(RegWindowHigh), arg.Addr)
	assert.Equal(t, byte(0x10), arg.Data)

	arg = ParseArg(CMD53(false, FuncMemory, 4, false, 0))
	assert.False(t, arg.Write)
	assert.Equal(t, BlockSize, arg.Bytes())
}
