package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	// ScrapeDuration ...
	ScrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmon_store_update_duration_seconds",
		Help:    "Histogram of store update() duration in seconds",
		Buckets: buckets,
	})

	// ScrapeFailuresCnt ...
	ScrapeFailuresCnt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cmon_store_scrape_failures_total", Help: "The total number of failed scrape cycles",
	})

	// ConsecutiveFailures ...
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmon_store_consecutive_failures", Help: "Failed scrape cycles since the last success",
	})

	// FamiliesTotal ...
	FamiliesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmon_store_families", Help: "The number of metric families held",
	})

	// InstancesTotal ...
	InstancesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmon_store_instances", Help: "The number of metric instances held",
	})

	// PrunedCnt counts families and instances removed for not being resent.
	PrunedCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmon_store_pruned_total", Help: "The total number of pruned families and instances",
	}, []string{"kind"})

	// DroppedSamplesCnt counts samples refused by the store.
	DroppedSamplesCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmon_store_dropped_samples_total", Help: "The total number of samples dropped by the store",
	}, []string{"reason"})
)
