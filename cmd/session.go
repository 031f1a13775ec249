package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/chip/emulator"
	"github.com/loopholelabs/wlanctl/pkg/command"
	wlanprom "github.com/loopholelabs/wlanctl/pkg/metrics/prometheus"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/transport/nl80211"
	"github.com/loopholelabs/wlanctl/pkg/transport/spi"
	"github.com/prometheus/client_golang/prometheus"
)

// extraBackends are registered after the built in ones.
var extraBackends []transport.Option

var errNotDirectCapable = errors.New("command not available on a direct chip transport")
var errNoCommandChannel = errors.New("transport can't carry firmware commands")

// session is an open transport plus everything hanging off it for one command.
type session struct {
	tr     *transport.Transport
	sender *command.Sender
	spi    *spi.SPI
	reg    *prometheus.Registry
	met    *wlanprom.Metrics
	active bool
}

// newSession selects and parses the transport without touching the hardware.
// It returns nil and no error when the user only asked for config help.
func newSession(out io.Writer) (*session, error) {
	s := &session{}

	opts := []transport.Option{
		transport.WithDebug(conf.Debug),
		transport.WithBackend(nl80211.Name, nl80211.New),
		transport.WithBackend(spi.Name, func(log types.Logger) transport.Backend {
			s.spi = spi.New(log).(*spi.SPI)
			return s.spi
		}),
	}
	opts = append(opts, extraBackends...)
	s.tr = transport.New(log, opts...)

	err := s.tr.Parse(conf.Transport, conf.Interface, conf.BackendConfig())
	if errors.Is(err, spi.ErrHelp) {
		fmt.Fprint(out, spi.Usage())
		return nil, nil
	}
	if errors.Is(err, transport.ErrInvalidTransport) {
		return nil, usagef("%w (available: %v)", err, s.tr.Names())
	}
	if err != nil {
		return nil, err
	}

	s.sender = command.NewSender(s.tr, log)
	if conf.MetricsFile != "" {
		s.reg = prometheus.NewRegistry()
		s.met = wlanprom.New(s.reg, wlanprom.DefaultConfig())
	}
	return s, nil
}

// open initialises the transport.
func (s *session) open() error {
	err := s.tr.Init()
	if err != nil {
		return err
	}
	s.active = true

	if s.met != nil {
		s.met.AddTransport(s.tr.Name(), s.tr)
		if s.spi != nil {
			if emu, ok := s.spi.Link().(*emulator.Chip); ok {
				s.met.AddEmulator(s.tr.Name(), emu)
			}
		}
	}
	return nil
}

// Close releases the transport and writes the metrics file if one was asked for.
func (s *session) Close() error {
	var err error
	if s.active {
		err = s.tr.Deinit()
		s.active = false
	}
	if s.met != nil {
		s.met.Shutdown()
		merr := wlanprom.WriteTextfile(conf.MetricsFile, s.reg)
		if merr != nil && log != nil {
			log.Warn().Str("file", conf.MetricsFile).Err(merr).Msg("could not write metrics")
		}
	}
	return err
}

// withSession runs fn against an initialised transport.
func withSession(out io.Writer, directOK bool, fn func(s *session) error) error {
	return runSession(out, directOK, false, fn)
}

// withSender is withSession for commands that talk to the firmware. A transport
// without a command channel is refused before it is initialised.
func withSender(out io.Writer, directOK bool, fn func(s *session) error) error {
	return runSession(out, directOK, true, fn)
}

func runSession(out io.Writer, directOK bool, sends bool, fn func(s *session) error) error {
	s, err := newSession(out)
	if err != nil || s == nil {
		return err
	}
	defer s.Close()

	// Commands that only make sense through the driver pass directOK false and
	// are refused on a direct chip transport.
	if !directOK && s.tr.Direct() {
		return transport.NewError(transport.CodeGeneric, s.tr.Name(), errNotDirectCapable)
	}
	if sends && !s.tr.CanSend() {
		return transport.NewError(transport.CodeGeneric, s.tr.Name(), errNoCommandChannel)
	}

	err = s.open()
	if err != nil {
		return err
	}
	return fn(s)
}
