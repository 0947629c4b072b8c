package ceph

import (
	"cmon/internal/pkg/store"

	"go.uber.org/zap"
)

// sumDeltas adds the deltas of each family. Deltas are already per-second
// rates, so no further scaling is applied.
func sumDeltas(s *store.Snapshot, names ...string) (float64, error) {
	var total float64
	for _, name := range names {
		f, err := family(s, name)
		if err != nil {
			return 0, err
		}
		total += f.SumDelta()
	}

	return total, nil
}

// TotalIOPS is the cluster wide read plus write operation rate.
func TotalIOPS(s *store.Snapshot) (float64, error) {
	iops, err := sumDeltas(s, "ceph_pool_rd", "ceph_pool_wr")
	if err != nil {
		return 0, err
	}
	zap.S().Debugw("total IOPS", "iops", iops)

	return iops, nil
}

// TotalThroughput is the cluster wide read plus write byte rate.
func TotalThroughput(s *store.Snapshot) (float64, error) {
	throughput, err := sumDeltas(s, "ceph_pool_rd_bytes", "ceph_pool_wr_bytes")
	if err != nil {
		return 0, err
	}
	zap.S().Debugw("total throughput", "bytes_per_sec", throughput)

	return throughput, nil
}
