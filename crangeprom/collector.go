// Package crangeprom exports the counters of crange indexes and their epoch
// domains as Prometheus metrics.
package crangeprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/metailurini/crange"
)

const namespace = "crange"

// Collector implements prometheus.Collector over one index. Every sample is
// labelled with the index identity.
type Collector struct {
	idx *crange.Index

	ranges        *prometheus.Desc
	searches      *prometheus.Desc
	replaces      *prometheus.Desc
	inserted      *prometheus.Desc
	removed       *prometheus.Desc
	promotions    *prometheus.Desc
	retries       *prometheus.Desc
	allocFailures *prometheus.Desc

	epoch        *prometheus.Desc
	activeGuards *prometheus.Desc
	pending      *prometheus.Desc
	retired      *prometheus.Desc
	reclaimed    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for idx.
func NewCollector(idx *crange.Index) *Collector {
	labels := prometheus.Labels{"index": idx.ID().String()}
	desc := func(subsystem, name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, variable, labels)
	}
	return &Collector{
		idx:           idx,
		ranges:        desc("", "ranges", "Number of live ranges."),
		searches:      desc("", "searches_total", "Lock-free searches."),
		replaces:      desc("", "replaces_total", "Replace operations on locked windows."),
		inserted:      desc("", "ranges_inserted_total", "Ranges linked by replace."),
		removed:       desc("", "ranges_removed_total", "Ranges unlinked by replace."),
		promotions:    desc("", "promotions_total", "Upper-level links added."),
		retries:       desc("", "retries_total", "Traversal retries by kind.", "kind"),
		allocFailures: desc("", "alloc_failures_total", "Range allocations refused by the node budget."),
		epoch:         desc("epoch", "current", "Global epoch of the reclamation domain."),
		activeGuards:  desc("epoch", "active_guards", "Guards currently entered."),
		pending:       desc("epoch", "pending", "Retired ranges waiting for quiescence."),
		retired:       desc("epoch", "retired_total", "Objects retired to the domain."),
		reclaimed:     desc("epoch", "reclaimed_total", "Objects reclaimed by the domain."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.ranges, c.searches, c.replaces, c.inserted, c.removed, c.promotions,
		c.retries, c.allocFailures, c.epoch, c.activeGuards, c.pending,
		c.retired, c.reclaimed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.idx.Stats()
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}
	counter := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, lv...)
	}

	gauge(c.ranges, float64(s.Len))
	counter(c.searches, float64(s.Searches))
	counter(c.replaces, float64(s.Replaces))
	counter(c.inserted, float64(s.Inserted))
	counter(c.removed, float64(s.Removed))
	counter(c.promotions, float64(s.Promotions))
	counter(c.retries, float64(s.LockRetries), "lock")
	counter(c.retries, float64(s.IndexRetries), "index")
	counter(c.allocFailures, float64(s.AllocFailures))

	e := c.idx.Domain().Stats()
	gauge(c.epoch, float64(e.Epoch))
	gauge(c.activeGuards, float64(e.ActiveGuards))
	gauge(c.pending, float64(e.Pending))
	counter(c.retired, float64(e.Retired))
	counter(c.reclaimed, float64(e.Reclaimed))
}
