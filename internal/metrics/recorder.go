// package metrics exports engine counters to Prometheus
package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/ytrpc/internal/models"
)

const namespace = "ytrpc"

// PrometheusRecorder records supervisor activity as Prometheus metrics.
type PrometheusRecorder struct {
	once        sync.Once
	reg         *prom.Registry
	state       *prom.GaugeVec
	transitions *prom.CounterVec
	retries     *prom.CounterVec
	retryDelay  *prom.HistogramVec
	sent        *prom.CounterVec
	received    *prom.CounterVec
	framing     prom.Counter
	confirmed   prom.Counter
}

var states = []models.ConnectionState{models.Disconnected, models.ConnectingHost, models.HostConnected, models.PresenceReady, models.Fault}

// NewPrometheusRecorder constructs and registers the collectors. A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.state = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"})
		pr.transitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "State machine transitions by source and target state",
		}, []string{"from", "to"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Retries scheduled by failure class",
		}, []string{"class"})
		pr.retryDelay = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay of scheduled retries",
			Buckets:   []float64{2, 5, 10, 20, 40, 80, 160, 360},
		}, []string{"class"})
		pr.sent = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages written to the native host",
		}, []string{"type"})
		pr.received = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages read from the native host",
		}, []string{"type"})
		pr.framing = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "Malformed messages read from the native host",
		})
		pr.confirmed = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "presences_confirmed_total",
			Help:      "Presences the sink acknowledged",
		})
		reg.MustRegister(pr.state, pr.transitions, pr.retries, pr.retryDelay, pr.sent, pr.received, pr.framing, pr.confirmed)
		pr.setState(models.Disconnected)
	})
	return pr
}

// WithRuntimeCollectors adds the Go runtime and process collectors to the registry.
func (p *PrometheusRecorder) WithRuntimeCollectors() *PrometheusRecorder {
	p.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors live in.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) StateChanged(from, to models.ConnectionState) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(from.String(), to.String()).Inc()
	p.setState(to)
}

func (p *PrometheusRecorder) setState(current models.ConnectionState) {
	for _, st := range states {
		v := 0.0
		if st == current {
			v = 1
		}
		p.state.WithLabelValues(st.String()).Set(v)
	}
}

func (p *PrometheusRecorder) RetryScheduled(class string, delay time.Duration) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(class).Inc()
	p.retryDelay.WithLabelValues(class).Observe(delay.Seconds())
}

func (p *PrometheusRecorder) MessageSent(msgType string) {
	if p == nil || p.sent == nil {
		return
	}
	p.sent.WithLabelValues(msgType).Inc()
}

func (p *PrometheusRecorder) MessageReceived(msgType string) {
	if p == nil || p.received == nil {
		return
	}
	p.received.WithLabelValues(msgType).Inc()
}

func (p *PrometheusRecorder) FramingError() {
	if p == nil || p.framing == nil {
		return
	}
	p.framing.Inc()
}

func (p *PrometheusRecorder) PresenceConfirmed() {
	if p == nil || p.confirmed == nil {
		return
	}
	p.confirmed.Inc()
}
