package promapi

import (
	"context"
	"time"

	"github.com/prometheus/common/model"
)

const (
	iopsQuery       = "sum(rate(ceph_pool_rd[30s])) + sum(rate(ceph_pool_wr[30s]))"
	throughputQuery = "sum(rate(ceph_pool_rd_bytes[30s])) + sum(rate(ceph_pool_wr_bytes[30s]))"
)

// IOLoad is the recent cluster IOPS and throughput history.
type IOLoad struct {
	IOPS       []float64 `json:"iops"`
	Throughput []float64 `json:"throughput"`
}

// IOLoadHistory returns IOPS and byte throughput over the window ending
// at end, one point per step.
func (c *Client) IOLoadHistory(ctx context.Context, end time.Time, window, step time.Duration) (IOLoad, error) {
	start := end.Add(-window)

	iops, err := c.QueryRange(ctx, iopsQuery, start, end, step)
	if err != nil {
		return IOLoad{}, err
	}
	throughput, err := c.QueryRange(ctx, throughputQuery, start, end, step)
	if err != nil {
		return IOLoad{}, err
	}

	return IOLoad{IOPS: firstSeries(iops), Throughput: firstSeries(throughput)}, nil
}

// firstSeries extracts the values of an aggregated query, which has at
// most one series.
func firstSeries(m model.Matrix) []float64 {
	if len(m) == 0 {
		return []float64{}
	}
	values := make([]float64, 0, len(m[0].Values))
	for _, p := range m[0].Values {
		values = append(values, float64(p.Value))
	}

	return values
}
