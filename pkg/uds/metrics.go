package uds

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional instrumentation bundle for a [Server] or
// [Client]. Grounded on the pack's runZeroInc-sockstats exporter
// (pkg/exporter/exporter.go), which registers plain prometheus.Counter/
// Gauge values rather than a custom Collector - appropriate here since
// counts are updated inline from Poll rather than scraped from external
// kernel state. Attaching nil Metrics (the default) disables all of this
// with no extra allocation on the hot path.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	NegativeResponsesTotal *prometheus.CounterVec
	RCRRPRetriesTotal prometheus.Counter
	TransferBytesInFlight prometheus.Gauge
}

// NewMetrics builds a Metrics bundle and registers it with reg. Pass a
// fresh *prometheus.Registry in tests to avoid collisions with the
// default global registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "UDS requests processed, labeled by service identifier.",
		}, []string{"sid"}),
		NegativeResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negative_responses_total",
			Help:      "Negative responses emitted, labeled by NRC.",
		}, []string{"nrc"}),
		RCRRPRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rcrrp_retries_total",
			Help:      "Times a pending handler was re-entered after NRC 0x78.",
		}),
		TransferBytesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_in_flight",
			Help:      "Bytes transferred so far in the active download/upload, 0 when idle.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.NegativeResponsesTotal, m.RCRRPRetriesTotal, m.TransferBytesInFlight)
	return m
}

func (m *Metrics) observeRequest(sid SID) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(sidLabel(sid)).Inc()
}

func (m *Metrics) observeNegative(code NRC) {
	if m == nil {
		return
	}
	m.NegativeResponsesTotal.WithLabelValues(nrcLabel(code)).Inc()
}

func (m *Metrics) observeRCRRPRetry() {
	if m == nil {
		return
	}
	m.RCRRPRetriesTotal.Inc()
}

func (m *Metrics) setTransferBytes(n uint64) {
	if m == nil {
		return
	}
	m.TransferBytesInFlight.Set(float64(n))
}

func sidLabel(sid SID) string {
	return "0x" + hexByte(uint8(sid))
}

func nrcLabel(code NRC) string {
	return "0x" + hexByte(uint8(code))
}

const hexDigits = "0123456789abcdef"

func hexByte(b uint8) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
}
