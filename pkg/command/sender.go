package command

import (
	"errors"
	"fmt"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

// StatusTimeout is the status firmware reports when a command timed out.
const StatusTimeout = int32(110)

const codeNoMemory = int32(-12)

var ErrNoMemory = errors.New("cannot allocate buffer")

// StatusError is a round trip that completed with a non zero firmware status.
type StatusError struct {
	ID     uint16
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", MessageString(e.ID), e.Status)
}

// Transport is the part of the dispatcher the sender needs.
type Transport interface {
	CmdAlloc(size int) (*wire.Buffer, error)
	RespAlloc(size int) (*wire.Buffer, error)
	Send(cmd *wire.Buffer, resp *wire.Buffer) error
}

type Sender struct {
	t   Transport
	log types.Logger
}

func NewSender(t Transport, log types.Logger) *Sender {
	return &Sender{
		t:   t,
		log: log,
	}
}

// Send frames cmd as a request for id, delivers it and checks the response status.
// Transport failures are returned unchanged and the response is not decoded.
func (s *Sender) Send(id uint16, cmd *wire.Buffer, resp *wire.Buffer) error {
	if cmd.Freed() || resp.Freed() {
		return ErrNoMemory
	}

	err := wire.EncodeRequest(cmd, id)
	if err != nil {
		return err
	}

	err = s.t.Send(cmd, resp)
	if err != nil {
		if s.log != nil {
			s.log.Debug().
				Str("message", MessageString(id)).
				Int("code", int(transport.Code(err))).
				Err(err).
				Msg("message failed")
		}
		return err
	}

	status, err := wire.DecodeResponse(resp)
	if err != nil {
		return err
	}
	if status != 0 {
		if s.log != nil && status != StatusTimeout {
			s.log.Debug().
				Str("message", MessageString(id)).
				Int("status", int(status)).
				Msg("command failed")
		}
		return &StatusError{ID: id, Status: status}
	}
	return nil
}

// Alloc returns command and response buffers for the given payload sizes.
func (s *Sender) Alloc(cmdSize int, respSize int) (*wire.Buffer, *wire.Buffer, error) {
	cmd, err := s.t.CmdAlloc(cmdSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	resp, err := s.t.RespAlloc(respSize)
	if err != nil {
		cmd.Free()
		return nil, nil, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	return cmd, resp, nil
}

// Code collapses err into the single integer result used for exit codes:
// zero, a negative transport or system code, or the firmware status.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrNoTimeout) {
		return -1
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, ErrNoMemory) {
		return codeNoMemory
	}
	var te *transport.Error
	if errors.As(err, &te) {
		return te.Code
	}
	return -1
}

// IsTimeout reports whether err is the expected timeout, either as a firmware
// status or as a transport errno.
func IsTimeout(err error) bool {
	c := Code(err)
	return c == StatusTimeout || c == -StatusTimeout
}
