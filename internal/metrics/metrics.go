// Package metrics exports keychain gate and request metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/benaskins/keyguard/internal/keychain"
)

// Collector implements keychain.Observer.
type Collector struct {
	gateWait *prometheus.HistogramVec
	gateHold *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

var gateBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		gateWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_gate_wait_seconds",
				Help:    "Time spent waiting to enter the store gate",
				Buckets: gateBuckets,
			},
			[]string{"op"},
		),
		gateHold: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyguard_gate_hold_seconds",
				Help:    "Time the store gate was held per operation",
				Buckets: gateBuckets,
			},
			[]string{"op"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_backend_requests_total",
				Help: "Backend requests by kind and result status",
			},
			[]string{"request", "status", "code"},
		),
	}

	for _, col := range []prometheus.Collector{c.gateWait, c.gateHold, c.requests} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveWait(op string, d time.Duration) {
	c.gateWait.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) ObserveHold(op string, d time.Duration) {
	c.gateHold.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) ObserveRequest(request string, st keychain.Status) {
	c.requests.WithLabelValues(request, st.String(), strconv.Itoa(int(st))).Inc()
}

var _ keychain.Observer = (*Collector)(nil)
