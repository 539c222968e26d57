// Package metrics exposes pipeline run counters to Prometheus.
//
// Every counter carries a "table" label naming the dataset table the pipeline
// writes (zvt_comp, ...). Counters live on a private registry so tests and
// repeated runs in one process never collide on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sc2ds"

// Collector holds the pipeline counters.
type Collector struct {
	registry *prometheus.Registry

	MatchesSeen       *prometheus.CounterVec
	OrderingsAccepted *prometheus.CounterVec
	OrderingsRejected *prometheus.CounterVec
	MatchesFiltered   *prometheus.CounterVec
	MatchesSkipped    *prometheus.CounterVec
	TicksSkipped      *prometheus.CounterVec
	RowsWritten       *prometheus.CounterVec
	MatchesAborted    *prometheus.CounterVec
}

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      name,
		Help:      help,
	}, []string{"table"})
}

// New creates a collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry:          prometheus.NewRegistry(),
		MatchesSeen:       counter("matches_seen_total", "Matches read from the upstream store."),
		OrderingsAccepted: counter("orderings_accepted_total", "Player orderings that matched the matchup and league filter."),
		OrderingsRejected: counter("orderings_rejected_total", "Player orderings rejected by the reorganizer."),
		MatchesFiltered:   counter("matches_filtered_total", "Matches rejected by match filters."),
		MatchesSkipped:    counter("matches_skipped_total", "Matches already present in the dataset table."),
		TicksSkipped:      counter("ticks_skipped_total", "Sample ticks already present in the dataset table."),
		RowsWritten:       counter("rows_written_total", "Dataset rows written."),
		MatchesAborted:    counter("matches_aborted_total", "Matches aborted on inconsistent upstream data."),
	}
	c.registry.MustRegister(
		c.MatchesSeen, c.OrderingsAccepted, c.OrderingsRejected, c.MatchesFiltered,
		c.MatchesSkipped, c.TicksSkipped, c.RowsWritten, c.MatchesAborted,
	)
	return c
}

// Registry returns the registry the counters are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the counters in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Event is a countable pipeline outcome.
type Event int

const (
	MatchSeen Event = iota
	OrderingAccepted
	OrderingRejected
	MatchFiltered
	MatchSkipped
	TickSkipped
	RowWritten
	MatchAborted
)

// Inc counts one event for table. A nil collector counts nothing.
func (c *Collector) Inc(e Event, table string) { c.Add(e, table, 1) }

// Add counts n events for table.
func (c *Collector) Add(e Event, table string, n int) {
	if c == nil || n <= 0 {
		return
	}
	var vec *prometheus.CounterVec
	switch e {
	case MatchSeen:
		vec = c.MatchesSeen
	case OrderingAccepted:
		vec = c.OrderingsAccepted
	case OrderingRejected:
		vec = c.OrderingsRejected
	case MatchFiltered:
		vec = c.MatchesFiltered
	case MatchSkipped:
		vec = c.MatchesSkipped
	case TickSkipped:
		vec = c.TicksSkipped
	case RowWritten:
		vec = c.RowsWritten
	case MatchAborted:
		vec = c.MatchesAborted
	default:
		return
	}
	vec.WithLabelValues(table).Add(float64(n))
}
