package mock

import (
	"errors"
	"sync"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

var ErrNotInitialised = errors.New("mock: not initialised")

type SendFunc func(cmd *wire.Buffer, resp *wire.Buffer) error

// Call is a command seen by the mock.
type Call struct {
	Header  wire.CommandHeader
	Payload []byte
}

// Mock is a packet transport that answers commands with a programmable function.
type Mock struct {
	lock        sync.Mutex
	send        SendFunc
	iface       string
	config      string
	initialised bool
	calls       []Call
	InitErr     error
}

func New(fn SendFunc) *Mock {
	return &Mock{send: fn}
}

// Factory returns a transport factory that always yields m.
func Factory(m *Mock) transport.Factory {
	return func(types.Logger) transport.Backend {
		return m
	}
}

func (m *Mock) Parse(iface string, config string) error {
	m.iface = iface
	m.config = config
	return nil
}

func (m *Mock) Init() error {
	if m.InitErr != nil {
		return m.InitErr
	}
	m.initialised = true
	return nil
}

func (m *Mock) Deinit() error {
	m.initialised = false
	return nil
}

func (m *Mock) WriteAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func (m *Mock) ReadAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func (m *Mock) InterfaceName() string {
	return m.iface
}

func (m *Mock) Config() string {
	return m.config
}

func (m *Mock) Send(cmd *wire.Buffer, resp *wire.Buffer) error {
	if !m.initialised {
		return transport.NewError(transport.CodeGeneric, "send", ErrNotInitialised)
	}
	hdr, err := wire.DecodeRequest(cmd)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.calls = append(m.calls, Call{
		Header:  hdr,
		Payload: append([]byte{}, cmd.Payload()...),
	})
	m.lock.Unlock()

	if m.send == nil {
		return wire.EncodeResponse(resp, 0)
	}
	return m.send(cmd, resp)
}

func (m *Mock) Calls() []Call {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]Call{}, m.calls...)
}

// Echo answers every command with status and payload.
func Echo(status int32, payload []byte) SendFunc {
	return func(cmd *wire.Buffer, resp *wire.Buffer) error {
		n := len(payload)
		if n > resp.Usable()-wire.HeaderLen {
			n = resp.Usable() - wire.HeaderLen
		}
		err := resp.SetPayloadLen(n)
		if err != nil {
			return err
		}
		copy(resp.Payload(), payload[:n])
		return wire.EncodeResponse(resp, status)
	}
}

// Fail answers every command with a transport failure.
func Fail(code int32) SendFunc {
	return func(cmd *wire.Buffer, resp *wire.Buffer) error {
		return transport.NewError(code, "send", errors.New("mock send failure"))
	}
}
