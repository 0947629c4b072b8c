package parse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MalformedSamplesCnt counts sample lines skipped by the parser.
var MalformedSamplesCnt = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cmon_parse_malformed_samples_total", Help: "The total number of malformed sample lines skipped",
})
