package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	versionLen   = 128
	hwVersionLen = 64
)

var ErrNoTimeout = errors.New("chip didn't timeout")

type Hart uint32

const (
	HartHost Hart = 0
	HartMAC  Hart = 1
	HartUPHY Hart = 2
	HartLPHY Hart = 3
)

func (h Hart) String() string {
	switch h {
	case HartHost:
		return "app"
	case HartMAC:
		return "mac"
	case HartUPHY:
		return "uphy"
	case HartLPHY:
		return "lphy"
	}
	return fmt.Sprintf("hart%d", uint32(h))
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// GetVersion returns the firmware version string.
func (s *Sender) GetVersion() (string, error) {
	cmd, resp, err := s.Alloc(0, 4+versionLen)
	if err != nil {
		return "", err
	}
	defer cmd.Free()
	defer resp.Free()

	err = s.Send(MessageGetVersion, cmd, resp)
	if err != nil {
		return "", err
	}
	p := resp.Payload()
	if len(p) < 4 {
		return "", fmt.Errorf("version response too short (%d bytes)", len(p))
	}
	n := int(int32(binary.LittleEndian.Uint32(p)))
	v := p[4:]
	if n < 0 {
		n = 0
	}
	if n > len(v) {
		n = len(v)
	}
	return cstring(v[:n]), nil
}

func (s *Sender) GetHWVersion() (string, error) {
	cmd, resp, err := s.Alloc(0, hwVersionLen)
	if err != nil {
		return "", err
	}
	defer cmd.Free()
	defer resp.Free()

	err = s.Send(MessageGetHWVersion, cmd, resp)
	if err != nil {
		return "", err
	}
	return cstring(resp.Payload()), nil
}

func (s *Sender) HealthCheck() error {
	cmd, resp, err := s.Alloc(0, 0)
	if err != nil {
		return err
	}
	defer cmd.Free()
	defer resp.Free()

	return s.Send(MessageHealthCheck, cmd, resp)
}

// ForceAssert crashes the given core on purpose. The chip stops answering, so
// only a timeout counts as success.
func (s *Sender) ForceAssert(h Hart) error {
	cmd, resp, err := s.Alloc(4, 0)
	if err != nil {
		return err
	}
	defer cmd.Free()
	defer resp.Free()

	binary.LittleEndian.PutUint32(cmd.Payload(), uint32(h))
	err = s.Send(MessageForceAssert, cmd, resp)
	if IsTimeout(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoTimeout, err)
	}
	return ErrNoTimeout
}
