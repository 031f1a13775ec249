package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loopholelabs/wlanctl/pkg/chip/emulator"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

type MetricsConfig struct {
	Namespace     string
	SubTransport  string
	SubEmulator   string
	TickTransport time.Duration
	TickEmulator  time.Duration
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:     "wlanctl",
		SubTransport:  "transport",
		SubEmulator:   "emulator",
		TickTransport: 100 * time.Millisecond,
		TickEmulator:  100 * time.Millisecond,
	}
}

type ticker struct {
	cancel context.CancelFunc
	tick   func()
	done   chan struct{}
}

type Metrics struct {
	reg    prometheus.Registerer
	lock   sync.Mutex
	config *MetricsConfig

	// transport
	transportSends       *prometheus.GaugeVec
	transportSendErrors  *prometheus.GaugeVec
	transportSendTimeMS  *prometheus.GaugeVec
	transportBytesSent   *prometheus.GaugeVec
	transportBytesRecv   *prometheus.GaugeVec
	transportRegReads    *prometheus.GaugeVec
	transportRegWrites   *prometheus.GaugeVec
	transportMemReads    *prometheus.GaugeVec
	transportMemWrites   *prometheus.GaugeVec
	transportMemBytes    *prometheus.GaugeVec
	transportRawBytes    *prometheus.GaugeVec
	transportErrors      *prometheus.GaugeVec
	transportUnsupported *prometheus.GaugeVec
	transportResets      *prometheus.GaugeVec

	// emulator
	emulatorCommands  *prometheus.GaugeVec
	emulatorCRCErrors *prometheus.GaugeVec
	emulatorBytesIn   *prometheus.GaugeVec
	emulatorBytesOut  *prometheus.GaugeVec

	tickers map[string]*ticker
}

func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	gauge := func(sub string, name string, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: sub, Name: name, Help: help}, []string{"device"})
	}

	met := &Metrics{
		config: config,
		reg:    reg,

		transportSends:       gauge(config.SubTransport, "sends", "Commands sent"),
		transportSendErrors:  gauge(config.SubTransport, "send_errors", "Commands that failed in the transport"),
		transportSendTimeMS:  gauge(config.SubTransport, "send_time_ms", "Time spent in send"),
		transportBytesSent:   gauge(config.SubTransport, "bytes_sent", "Command bytes sent"),
		transportBytesRecv:   gauge(config.SubTransport, "bytes_recv", "Response bytes received"),
		transportRegReads:    gauge(config.SubTransport, "reg_reads", "Register reads"),
		transportRegWrites:   gauge(config.SubTransport, "reg_writes", "Register writes"),
		transportMemReads:    gauge(config.SubTransport, "mem_reads", "Memory reads"),
		transportMemWrites:   gauge(config.SubTransport, "mem_writes", "Memory writes"),
		transportMemBytes:    gauge(config.SubTransport, "mem_bytes", "Memory bytes transferred"),
		transportRawBytes:    gauge(config.SubTransport, "raw_bytes", "Raw bus bytes"),
		transportErrors:      gauge(config.SubTransport, "errors", "Failed operations"),
		transportUnsupported: gauge(config.SubTransport, "unsupported", "Operations the backend can't do"),
		transportResets:      gauge(config.SubTransport, "resets", "Hard resets"),

		emulatorCommands:  gauge(config.SubEmulator, "commands", "Bus commands seen"),
		emulatorCRCErrors: gauge(config.SubEmulator, "crc_errors", "CRC failures"),
		emulatorBytesIn:   gauge(config.SubEmulator, "bytes_in", "Bytes clocked in"),
		emulatorBytesOut:  gauge(config.SubEmulator, "bytes_out", "Bytes clocked out"),

		tickers: make(map[string]*ticker),
	}

	reg.MustRegister(
		met.transportSends,
		met.transportSendErrors,
		met.transportSendTimeMS,
		met.transportBytesSent,
		met.transportBytesRecv,
		met.transportRegReads,
		met.transportRegWrites,
		met.transportMemReads,
		met.transportMemWrites,
		met.transportMemBytes,
		met.transportRawBytes,
		met.transportErrors,
		met.transportUnsupported,
		met.transportResets)

	reg.MustRegister(met.emulatorCommands, met.emulatorCRCErrors, met.emulatorBytesIn, met.emulatorBytesOut)

	return met
}

// remove stops the ticker for name and takes one last reading so short lived
// commands still report their totals.
func (m *Metrics) remove(subsystem string, name string) {
	key := fmt.Sprintf("%s_%s", subsystem, name)
	m.lock.Lock()
	t, ok := m.tickers[key]
	delete(m.tickers, key)
	m.lock.Unlock()
	if ok {
		t.stop()
	}
}

func (t *ticker) stop() {
	t.cancel()
	<-t.done
	t.tick()
}

func (m *Metrics) add(subsystem string, name string, interval time.Duration, tickfn func()) {
	ctx, cancelfn := context.WithCancel(context.TODO())
	t := &ticker{cancel: cancelfn, tick: tickfn, done: make(chan struct{})}
	m.lock.Lock()
	m.tickers[fmt.Sprintf("%s_%s", subsystem, name)] = t
	m.lock.Unlock()

	tick := time.NewTicker(interval)
	go func() {
		defer close(t.done)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				tickfn()
			}
		}
	}()
}

// Shutdown everything
func (m *Metrics) Shutdown() {
	m.lock.Lock()
	tickers := m.tickers
	m.tickers = make(map[string]*ticker)
	m.lock.Unlock()
	for _, t := range tickers {
		t.stop()
	}
}

func (m *Metrics) AddTransport(name string, t *transport.Transport) {
	m.add(m.config.SubTransport, name, m.config.TickTransport, func() {
		met := t.GetMetrics()
		m.transportSends.WithLabelValues(name).Set(float64(met.Sends))
		m.transportSendErrors.WithLabelValues(name).Set(float64(met.SendErrors))
		m.transportSendTimeMS.WithLabelValues(name).Set(float64(time.Duration(met.SendTime).Milliseconds()))
		m.transportBytesSent.WithLabelValues(name).Set(float64(met.BytesSent))
		m.transportBytesRecv.WithLabelValues(name).Set(float64(met.BytesRecv))
		m.transportRegReads.WithLabelValues(name).Set(float64(met.RegReads))
		m.transportRegWrites.WithLabelValues(name).Set(float64(met.RegWrites))
		m.transportMemReads.WithLabelValues(name).Set(float64(met.MemReads))
		m.transportMemWrites.WithLabelValues(name).Set(float64(met.MemWrites))
		m.transportMemBytes.WithLabelValues(name).Set(float64(met.MemBytes))
		m.transportRawBytes.WithLabelValues(name).Set(float64(met.RawBytes))
		m.transportErrors.WithLabelValues(name).Set(float64(met.Errors))
		m.transportUnsupported.WithLabelValues(name).Set(float64(met.Unsupported))
		m.transportResets.WithLabelValues(name).Set(float64(met.Resets))
	})
}

func (m *Metrics) RemoveTransport(name string) {
	m.remove(m.config.SubTransport, name)
}

func (m *Metrics) AddEmulator(name string, c *emulator.Chip) {
	m.add(m.config.SubEmulator, name, m.config.TickEmulator, func() {
		met := c.GetMetrics()
		m.emulatorCommands.WithLabelValues(name).Set(float64(met.Commands))
		m.emulatorCRCErrors.WithLabelValues(name).Set(float64(met.CRCErrors))
		m.emulatorBytesIn.WithLabelValues(name).Set(float64(met.BytesIn))
		m.emulatorBytesOut.WithLabelValues(name).Set(float64(met.BytesOut))
	})
}

func (m *Metrics) RemoveEmulator(name string) {
	m.remove(m.config.SubEmulator, name)
}

// WriteTextfile writes everything g gathers in the node exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
