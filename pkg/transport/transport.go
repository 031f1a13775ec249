package transport

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/wire"
)

type namedFactory struct {
	name    string
	factory Factory
}

// Transport routes generic requests to the selected backend.
type Transport struct {
	log       types.Logger
	debug     bool
	factories []namedFactory
	name      string
	backend   Backend
	active    bool

	metricSends       uint64
	metricSendErrors  uint64
	metricSendTime    uint64
	metricBytesSent   uint64
	metricBytesRecv   uint64
	metricRegReads    uint64
	metricRegWrites   uint64
	metricMemReads    uint64
	metricMemWrites   uint64
	metricMemBytes    uint64
	metricRawBytes    uint64
	metricErrors      uint64
	metricUnsupported uint64
	metricResets      uint64
}

type MetricsSnapshot struct {
	Sends       uint64
	SendErrors  uint64
	SendTime    uint64
	BytesSent   uint64
	BytesRecv   uint64
	RegReads    uint64
	RegWrites   uint64
	MemReads    uint64
	MemWrites   uint64
	MemBytes    uint64
	RawBytes    uint64
	Errors      uint64
	Unsupported uint64
	Resets      uint64
}

type Option func(*Transport)

// WithBackend registers a backend under name. The first registered backend is the default.
func WithBackend(name string, f Factory) Option {
	return func(t *Transport) {
		t.factories = append(t.factories, namedFactory{name: name, factory: f})
	}
}

// WithDebug adds hex dumps of transferred data to the debug log.
func WithDebug(debug bool) Option {
	return func(t *Transport) {
		t.debug = debug
	}
}

func New(log types.Logger, opts ...Option) *Transport {
	t := &Transport{
		log: log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Transport) Names() []string {
	names := make([]string, 0, len(t.factories))
	for _, f := range t.factories {
		names = append(names, f.name)
	}
	return names
}

func (t *Transport) Default() string {
	if len(t.factories) == 0 {
		return ""
	}
	return t.factories[0].name
}

// Parse selects a backend by name (empty means the default) and hands it the
// interface and backend specific configuration.
func (t *Transport) Parse(name string, iface string, config string) error {
	if name == "" {
		name = t.Default()
	}
	var factory Factory
	for _, f := range t.factories {
		if f.name == name {
			factory = f.factory
		}
	}
	if factory == nil {
		return NewError(CodeGeneric, "parse", fmt.Errorf("%w: %q", ErrInvalidTransport, name))
	}

	b := factory(t.log)
	err := b.Parse(iface, config)
	if t.log != nil {
		t.log.Debug().
			Str("transport", name).
			Str("interface", iface).
			Str("config", config).
			Err(err).
			Msg("parse")
	}
	if err != nil {
		return wrap("parse", err)
	}
	t.name = name
	t.backend = b
	return nil
}

func (t *Transport) Name() string {
	return t.name
}

func (t *Transport) Init() error {
	if t.backend == nil {
		return NewError(CodeGeneric, "init", ErrNotInitialised)
	}
	err := t.backend.Init()
	if t.log != nil {
		t.log.Debug().Str("transport", t.name).Err(err).Msg("init")
	}
	if err != nil {
		atomic.AddUint64(&t.metricErrors, 1)
		return wrap("init", err)
	}
	t.active = true
	return nil
}

// Deinit releases the backend. The transport must be parsed again before reuse.
func (t *Transport) Deinit() error {
	if t.backend == nil {
		return nil
	}
	var err error
	if t.active {
		err = t.backend.Deinit()
	}
	if t.log != nil {
		t.log.Debug().Str("transport", t.name).Err(err).Msg("deinit")
	}
	t.backend = nil
	t.active = false
	return wrap("deinit", err)
}

func (t *Transport) alloc(op string, size int, read bool) (*wire.Buffer, error) {
	if t.backend == nil {
		return nil, NewError(CodeGeneric, op, ErrNotInitialised)
	}
	var b *wire.Buffer
	var err error
	if read {
		b, err = t.backend.ReadAlloc(size)
	} else {
		b, err = t.backend.WriteAlloc(size)
	}
	return b, wrap(op, err)
}

// CmdAlloc returns a buffer for a command envelope carrying size payload bytes.
func (t *Transport) CmdAlloc(size int) (*wire.Buffer, error) {
	return t.alloc("cmd_alloc", size+wire.HeaderLen, false)
}

// RespAlloc returns a buffer for a response envelope carrying size payload bytes.
func (t *Transport) RespAlloc(size int) (*wire.Buffer, error) {
	return t.alloc("resp_alloc", size+wire.HeaderLen, true)
}

func (t *Transport) RawReadAlloc(size int) (*wire.Buffer, error) {
	return t.alloc("raw_read_alloc", size, true)
}

func (t *Transport) RawWriteAlloc(size int) (*wire.Buffer, error) {
	return t.alloc("raw_write_alloc", size, false)
}

func (t *Transport) unsupported(op string) error {
	atomic.AddUint64(&t.metricUnsupported, 1)
	if t.log != nil {
		t.log.Debug().Str("transport", t.name).Str("op", op).Msg("unsupported")
	}
	return NewError(CodeGeneric, op, ErrUnsupported)
}

func (t *Transport) failed(op string, err error) error {
	if err != nil {
		atomic.AddUint64(&t.metricErrors, 1)
	}
	return wrap(op, err)
}

func (t *Transport) dump(b *wire.Buffer) string {
	if !t.debug {
		return ""
	}
	return hex.EncodeToString(b.Bytes())
}

// Send delivers a command envelope and fills resp with the response envelope.
func (t *Transport) Send(cmd *wire.Buffer, resp *wire.Buffer) error {
	if t.backend == nil {
		return NewError(CodeGeneric, "send", ErrNotInitialised)
	}
	s, ok := t.backend.(Sender)
	if !ok {
		return t.unsupported("send")
	}
	if cmd.Freed() || resp.Freed() {
		return NewError(CodeGeneric, "send", ErrNilBuffer)
	}

	atomic.AddUint64(&t.metricSends, 1)
	atomic.AddUint64(&t.metricBytesSent, uint64(cmd.Len()))
	ctime := time.Now()
	err := s.Send(cmd, resp)
	atomic.AddUint64(&t.metricSendTime, uint64(time.Since(ctime)))

	if err == nil && resp.Len() < wire.HeaderLen {
		err = NewError(CodeGeneric, "send", ErrShortResponse)
	}

	if t.log != nil {
		t.log.Debug().
			Str("transport", t.name).
			Int("cmd_len", cmd.Len()).
			Int("resp_len", resp.Len()).
			Str("cmd", t.dump(cmd)).
			Str("resp", t.dump(resp)).
			Err(err).
			Msg("send")
	}

	if err != nil {
		atomic.AddUint64(&t.metricSendErrors, 1)
		return t.failed("send", err)
	}
	atomic.AddUint64(&t.metricBytesRecv, uint64(resp.Len()))
	return nil
}

func (t *Transport) RegRead(addr uint32) (uint32, error) {
	if t.backend == nil {
		return 0, NewError(CodeGeneric, "reg_read", ErrNotInitialised)
	}
	ra, ok := t.backend.(RegisterAccess)
	if !ok {
		return 0, t.unsupported("reg_read")
	}
	atomic.AddUint64(&t.metricRegReads, 1)
	val, err := ra.RegRead(addr)
	if t.log != nil {
		t.log.Debug().
			Str("transport", t.name).
			Str("addr", fmt.Sprintf("0x%08x", addr)).
			Str("value", fmt.Sprintf("0x%08x", val)).
			Err(err).
			Msg("reg_read")
	}
	return val, t.failed("reg_read", err)
}

func (t *Transport) RegWrite(addr uint32, value uint32) error {
	if t.backend == nil {
		return NewError(CodeGeneric, "reg_write", ErrNotInitialised)
	}
	ra, ok := t.backend.(RegisterAccess)
	if !ok {
		return t.unsupported("reg_write")
	}
	atomic.AddUint64(&t.metricRegWrites, 1)
	err := ra.RegWrite(addr, value)
	if t.log != nil {
		t.log.Debug().
			Str("transport", t.name).
			Str("addr", fmt.Sprintf("0x%08x", addr)).
			Str("value", fmt.Sprintf("0x%08x", value)).
			Err(err).
			Msg("reg_write")
	}
	return t.failed("reg_write", err)
}

func (t *Transport) MemRead(buff *wire.Buffer, addr uint32) error {
	if t.backend == nil {
		return NewError(CodeGeneric, "mem_read", ErrNotInitialised)
	}
	ma, ok := t.backend.(MemoryAccess)
	if !ok {
		return t.unsupported("mem_read")
	}
	atomic.AddUint64(&t.metricMemReads, 1)
	atomic.AddUint64(&t.metricMemBytes, uint64(buff.Len()))
	err := ma.MemRead(buff, addr)
	if t.log != nil {
		t.log.Debug().
			Str("transport", t.name).
			Str("addr", fmt.Sprintf("0x%08x", addr)).
			Int("length", buff.Len()).
			Str("data", t.dump(buff)).
			Err(err).
			Msg("mem_read")
	}
	return t.failed("mem_read", err)
}

func (t *Transport) MemWrite(buff *wire.Buffer, addr uint32) error {
	if t.backend == nil {
		return NewError(CodeGeneric, "mem_write", ErrNotInitialised)
	}
	ma, ok := t.backend.(MemoryAccess)
	if !ok {
		return t.unsupported("mem_write")
	}
	atomic.AddUint64(&t.metricMemWrites, 1)
	atomic.AddUint64(&t.metricMemBytes, uint64(buff.Len()))
	err := ma.MemWrite(buff, addr)
	if t.log != nil {
		t.log.Debug().
			Str("transport", t.name).
			Str("addr", fmt.Sprintf("0x%08x", addr)).
			Int("length", buff.Len()).
			Err(err).
			Msg("mem_write")
	}
	return t.failed("mem_write", err)
}

func (t *Transport) raw() (RawAccess, error) {
	if t.backend == nil {
		return nil, NewError(CodeGeneric, "raw", ErrNotInitialised)
	}
	r, ok := t.backend.(RawAccess)
	if !ok {
		return nil, t.unsupported("raw")
	}
	return r, nil
}

func (t *Transport) RawRead(rx *wire.Buffer, start bool, finish bool) error {
	r, err := t.raw()
	if err != nil {
		return err
	}
	atomic.AddUint64(&t.metricRawBytes, uint64(rx.Len()))
	return t.failed("raw_read", r.RawRead(rx, start, finish))
}

func (t *Transport) RawWrite(tx *wire.Buffer, start bool, finish bool) error {
	r, err := t.raw()
	if err != nil {
		return err
	}
	atomic.AddUint64(&t.metricRawBytes, uint64(tx.Len()))
	return t.failed("raw_write", r.RawWrite(tx, start, finish))
}

func (t *Transport) RawReadWrite(tx *wire.Buffer, rx *wire.Buffer, start bool, finish bool) error {
	r, err := t.raw()
	if err != nil {
		return err
	}
	atomic.AddUint64(&t.metricRawBytes, uint64(tx.Len()))
	return t.failed("raw_read_write", r.RawReadWrite(tx, rx, start, finish))
}

// HasReset reports whether the backend can hard reset the chip.
func (t *Transport) HasReset() bool {
	r, ok := t.backend.(Resetter)
	return ok && r.HasReset()
}

func (t *Transport) ResetDevice() error {
	if t.backend == nil {
		return NewError(CodeGeneric, "reset", ErrNotInitialised)
	}
	r, ok := t.backend.(Resetter)
	if !ok || !r.HasReset() {
		return t.unsupported("reset")
	}
	atomic.AddUint64(&t.metricResets, 1)
	err := r.ResetDevice()
	if t.log != nil {
		t.log.Debug().Str("transport", t.name).Err(err).Msg("reset")
	}
	return t.failed("reset", err)
}

// CanSend reports whether the backend carries firmware command envelopes.
func (t *Transport) CanSend() bool {
	_, ok := t.backend.(Sender)
	return ok
}

// Direct reports whether the backend talks to chip registers rather than to firmware.
func (t *Transport) Direct() bool {
	_, ok := t.backend.(RegisterAccess)
	return ok
}

func (t *Transport) InterfaceName() string {
	if i, ok := t.backend.(Interfacer); ok {
		return i.InterfaceName()
	}
	return ""
}

func (t *Transport) GetMetrics() *MetricsSnapshot {
	return &MetricsSnapshot{
		Sends:       atomic.LoadUint64(&t.metricSends),
		SendErrors:  atomic.LoadUint64(&t.metricSendErrors),
		SendTime:    atomic.LoadUint64(&t.metricSendTime),
		BytesSent:   atomic.LoadUint64(&t.metricBytesSent),
		BytesRecv:   atomic.LoadUint64(&t.metricBytesRecv),
		RegReads:    atomic.LoadUint64(&t.metricRegReads),
		RegWrites:   atomic.LoadUint64(&t.metricRegWrites),
		MemReads:    atomic.LoadUint64(&t.metricMemReads),
		MemWrites:   atomic.LoadUint64(&t.metricMemWrites),
		MemBytes:    atomic.LoadUint64(&t.metricMemBytes),
		RawBytes:    atomic.LoadUint64(&t.metricRawBytes),
		Errors:      atomic.LoadUint64(&t.metricErrors),
		Unsupported: atomic.LoadUint64(&t.metricUnsupported),
		Resets:      atomic.LoadUint64(&t.metricResets),
	}
}
