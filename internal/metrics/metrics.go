package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpggio/admission/internal/domain/queue"
)

// Collector records queue activity. It satisfies queue.Observer.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	active     *prometheus.GaugeVec
	broadcasts *prometheus.CounterVec

	mu    sync.Mutex
	tiers map[int]bool
}

// New registers the admission metrics on a fresh registry.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_operations_total",
				Help:      "Total queue mutations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_operation_duration_seconds",
				Help:      "Duration of queue mutations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_active_tickets",
				Help:      "Current number of active tickets per tier",
			},
			[]string{"tier"},
		),
		broadcasts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_messages_total",
				Help:      "Broadcast deliveries by outcome",
			},
			[]string{"status"},
		),
		tiers: make(map[int]bool),
	}
}

// ObserveOperation implements queue.Observer.
func (c *Collector) ObserveOperation(op string, elapsed time.Duration, err error) {
	c.operations.WithLabelValues(op, outcome(err)).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveActive implements queue.Observer. Tiers that drop to zero are
// reported as zero rather than left at their last value.
func (c *Collector) ObserveActive(byTier map[int]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tier := range c.tiers {
		if _, ok := byTier[tier]; !ok {
			c.active.WithLabelValues(strconv.Itoa(tier)).Set(0)
		}
	}
	for tier, n := range byTier {
		c.tiers[tier] = true
		c.active.WithLabelValues(strconv.Itoa(tier)).Set(float64(n))
	}
}

// ObserveBroadcast counts broadcast deliveries.
func (c *Collector) ObserveBroadcast(sent, failed int) {
	c.broadcasts.WithLabelValues("sent").Add(float64(sent))
	c.broadcasts.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, queue.ErrContention):
		return "contention"
	default:
		return "error"
	}
}
