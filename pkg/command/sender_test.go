package command

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/testutils"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/transport/mock"
	"github.com/loopholelabs/wlanctl/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSender(t *testing.T, fn mock.SendFunc) (*Sender, *mock.Mock) {
	log := logging.New(logging.Zerolog, "wlanctl", os.Stdout)
	log.SetLevel(types.TraceLevel)

	m := mock.New(fn)
	tr := transport.New(log, transport.WithBackend("mock", mock.Factory(m)))
	require.NoError(t, tr.Parse("mock", "", ""))
	require.NoError(t, tr.Init())
	t.Cleanup(func() {
		_ = tr.Deinit()
	})
	return NewSender(tr, log), m
}

func TestSendSuccess(t *testing.T) {
	s, m := setupSender(t, mock.Echo(0, []byte{0xde, 0xad, 0xbe, 0xef}))

	cmd, resp, err := s.Alloc(2, 4)
	require.NoError(t, err)
	copy(cmd.Payload(), []byte{9, 8})

	err = s.Send(0x42, cmd, resp)
	assert.NoError(t, err)
	assert.Equal(t, int32(0), Code(err))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, resp.Payload())

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, uint16(0x42), calls[0].Header.MessageID)
	assert.Equal(t, uint16(2), calls[0].Header.PayloadLen)
	assert.True(t, calls[0].Header.IsRequest())
	assert.Equal(t, []byte{9, 8}, calls[0].Payload)
}

func TestSendTransportFailure(t *testing.T) {
	decoded := false
	s, _ := setupSender(t, func(cmd *wire.Buffer, resp *wire.Buffer) error {
		// A status the sender must never look at
		_ = wire.EncodeResponse(resp, 77)
		decoded = true
		return transport.NewError(-5, "send", errors.New("io error"))
	})

	cmd, resp, err := s.Alloc(0, 0)
	require.NoError(t, err)

	err = s.Send(MessageHealthCheck, cmd, resp)
	require.Error(t, err)
	assert.True(t, decoded)
	assert.Equal(t, int32(-5), Code(err))

	var se *StatusError
	assert.False(t, errors.As(err, &se))
	var te *transport.Error
	assert.True(t, errors.As(err, &te))
}

func TestSendStatus(t *testing.T) {
	s, _ := setupSender(t, mock.Echo(22, nil))

	cmd, resp, err := s.Alloc(0, 0)
	require.NoError(t, err)

	err = s.Send(MessageGetVersion, cmd, resp)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int32(22), se.Status)
	assert.Equal(t, MessageGetVersion, se.ID)
	assert.Equal(t, int32(22), Code(err))
	assert.False(t, IsTimeout(err))
}

func TestSendNilBuffers(t *testing.T) {
	s, m := setupSender(t, nil)

	_, resp, err := s.Alloc(0, 0)
	require.NoError(t, err)

	err = s.Send(1, nil, resp)
	assert.ErrorIs(t, err, ErrNoMemory)
	assert.Equal(t, int32(-12), Code(err))
	assert.Empty(t, m.Calls())
}

func TestGetVersion(t *testing.T) {
	payload := make([]byte, 4+versionLen)
	binary.LittleEndian.PutUint32(payload, 9)
	copy(payload[4:], "rel_1_2_3garbage")

	s, m := setupSender(t, mock.Echo(0, payload))
	v, err := s.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "rel_1_2_3", v)
	assert.Equal(t, MessageGetVersion, m.Calls()[0].Header.MessageID)
}

func TestGetVersionBadLength(t *testing.T) {
	payload := make([]byte, 4+versionLen)
	binary.LittleEndian.PutUint32(payload, 1000)
	copy(payload[4:], "rel_1_2_3")

	s, _ := setupSender(t, mock.Echo(0, payload))
	v, err := s.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "rel_1_2_3", v)
}

func TestGetHWVersion(t *testing.T) {
	s, _ := setupSender(t, mock.Echo(0, []byte("MM6108-B2\x00junk")))
	v, err := s.GetHWVersion()
	require.NoError(t, err)
	assert.Equal(t, "MM6108-B2", v)
}

func TestHealthCheck(t *testing.T) {
	s, _ := setupSender(t, mock.Echo(0, nil))
	assert.NoError(t, s.HealthCheck())

	s, _ = setupSender(t, mock.Echo(-1, nil))
	assert.Error(t, s.HealthCheck())
}

func TestForceAssert(t *testing.T) {
	// Timeout reported by the transport
	s, m := setupSender(t, mock.Fail(-110))
	assert.NoError(t, s.ForceAssert(HartUPHY))
	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, MessageForceAssert, calls[0].Header.MessageID)
	assert.Equal(t, []byte{2, 0, 0, 0}, calls[0].Payload)

	// Timeout reported as firmware status
	s, _ = setupSender(t, mock.Echo(StatusTimeout, nil))
	assert.NoError(t, s.ForceAssert(HartMAC))

	// The chip answered, so the assert didn't happen
	s, _ = setupSender(t, mock.Echo(0, nil))
	err := s.ForceAssert(HartMAC)
	assert.ErrorIs(t, err, ErrNoTimeout)
	assert.Equal(t, int32(-1), Code(err))

	s, _ = setupSender(t, mock.Echo(5, nil))
	err = s.ForceAssert(HartMAC)
	assert.ErrorIs(t, err, ErrNoTimeout)
	assert.Equal(t, int32(-1), Code(err))
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "ForceAssert", MessageString(MessageForceAssert))
	assert.Equal(t, "Message(0x1234)", MessageString(0x1234))
	assert.True(t, IsTestCommand(MessageForceAssert))
	assert.False(t, IsTestCommand(MessageGetVersion))
	assert.Equal(t, "uphy", HartUPHY.String())
}

func TestStatusDebugLine(t *testing.T) {
	for _, tc := range []struct {
		status int32
		logged bool
	}{
		{StatusTimeout, false},
		{22, true},
	} {
		var out testutils.SafeWriteBuffer
		log := logging.New(logging.Zerolog, "wlanctl", &out)
		log.SetLevel(types.TraceLevel)

		m := mock.New(mock.Echo(tc.status, nil))
		tr := transport.New(nil, transport.WithBackend("mock", mock.Factory(m)))
		require.NoError(t, tr.Parse("mock", "", ""))
		require.NoError(t, tr.Init())
		s := NewSender(tr, log)

		err := s.HealthCheck()
		assert.Equal(t, tc.status, Code(err))
		if tc.logged {
			assert.Contains(t, out.String(), "command failed", "status %d", tc.status)
		} else {
			assert.NotContains(t, out.String(), "command failed", "status %d", tc.status)
		}
		_ = tr.Deinit()
	}
}
