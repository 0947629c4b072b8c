// Package ceph derives cluster level summaries from a metric store
// snapshot. Every function here is pure: it reads the snapshot it is given
// and returns fresh values.
package ceph

import (
	"cmon/internal/pkg/store"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrMetricMissing a metric the view depends on is not in the snapshot.
	ErrMetricMissing = errors.New("metric not found")

	// ErrUnknownHealth ceph_health_status holds a value outside 0, 1, 2.
	ErrUnknownHealth = errors.New("unknown health status")
)

// SkippedRecordsCnt counts records dropped by strict joins.
var SkippedRecordsCnt = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cmon_view_skipped_records_total", Help: "The total number of records skipped for missing join data",
}, []string{"view"})

func family(s *store.Snapshot, name string) (*store.Family, error) {
	f, ok := s.Family(name)
	if !ok {
		return nil, errors.Wrap(ErrMetricMissing, name)
	}

	return f, nil
}

// singleton returns the value of an unlabeled family, 0 when absent.
func singleton(s *store.Snapshot, name string) float64 {
	f, ok := s.Family(name)
	if !ok {
		return 0
	}
	v, _ := f.Singleton()

	return v
}

// sumValues adds up the values of a family, 0 when absent.
func sumValues(s *store.Snapshot, name string) float64 {
	f, ok := s.Family(name)
	if !ok {
		return 0
	}

	return f.Sum()
}

// humanBytes formats a byte count with SI (binary=false) or IEC units.
func humanBytes(v float64, binary bool) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if binary {
		return sign + humanize.IBytes(uint64(v))
	}

	return sign + humanize.Bytes(uint64(v))
}

// humanRate formats a byte rate, e.g. "1.5 MB/s".
func humanRate(v float64) string {
	return humanBytes(v, false) + "/s"
}
