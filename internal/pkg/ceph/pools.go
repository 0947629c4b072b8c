package ceph

import (
	"fmt"

	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/store"

	"go.uber.org/zap"
)

// PoolRecord is the per pool view.
type PoolRecord struct {
	ID   string `json:"pool_id"`
	Name string `json:"name"`

	// Compression is ON, OFF, or N/A for releases without compression_mode.
	Compression string `json:"compression"`

	ReadOps    float64 `json:"read_ops"`
	WriteOps   float64 `json:"write_ops"`
	ReadBytes  float64 `json:"read_bytes"`
	WriteBytes float64 `json:"write_bytes"`
	IOPS       float64 `json:"iops"`
	Throughput string  `json:"throughput"`

	StoredBytes   float64 `json:"stored_bytes"`
	MaxAvailBytes float64 `json:"max_avail_bytes"`
	Stored        string  `json:"stored"`
	Avail         string  `json:"avail"`

	PGs          int     `json:"pgs"`
	PGsActive    int     `json:"pgs_active"`
	SavingsBytes float64 `json:"savings_bytes"`
	Savings      string  `json:"savings"`
	RecoveryRate float64 `json:"recovery_rate"`
	Health       string  `json:"health"`

	// PercentUsed is only published by Pacific and later.
	PercentUsed    float64 `json:"percent_used"`
	HasPercentUsed bool    `json:"has_percent_used"`
	UsedPct        string  `json:"used_pct"`
}

// NoPools is the reason given when the pool view is empty.
const NoPools = "no pools found"

// PoolsIncomplete is the reason given when every pool was skipped for
// missing data.
const PoolsIncomplete = "pool data incomplete"

// required pool families: every pool in ceph_pool_metadata must have them.
var poolRequired = []struct{ family, source, target string }{
	{"ceph_pool_rd", merge.FieldDelta, "pool_rd"},
	{"ceph_pool_wr", merge.FieldDelta, "pool_wr"},
	{"ceph_pool_rd_bytes", merge.FieldDelta, "pool_rd_bytes"},
	{"ceph_pool_wr_bytes", merge.FieldDelta, "pool_wr_bytes"},
	{"ceph_pool_stored", merge.FieldValue, "stored_bytes"},
	{"ceph_pool_max_avail", merge.FieldValue, "max_avail_bytes"},
}

// optional pool families differ between releases; missing means 0.
var poolOptional = []struct{ family, source, target string }{
	{"ceph_pool_percent_used", merge.FieldValue, "percent_used"},
	{"ceph_pool_compress_under_bytes", merge.FieldValue, "compress_under_bytes"},
	{"ceph_pool_compress_bytes_used", merge.FieldValue, "compress_bytes_used"},
	{"ceph_pg_total", merge.FieldValue, "pg_count"},
	{"ceph_pg_active", merge.FieldValue, "pg_active"},
	{"ceph_pool_recovering_objects_per_sec", merge.FieldValue, "recovery_rate"},
}

// Pools joins the pool families on pool_id. A pool without an entry in a
// required family is a data integrity fault handled according to policy.
// An empty result comes with a reason for display.
func Pools(s *store.Snapshot, policy merge.Policy) ([]PoolRecord, string, error) {
	base := merge.FromFamily(s, "ceph_pool_metadata")
	if len(base) == 0 {
		return []PoolRecord{}, NoPools, nil
	}

	required := make([]merge.Update, 0, len(poolRequired))
	for _, u := range poolRequired {
		required = append(required, merge.FamilyUpdate(s, u.family, u.source, u.target))
	}
	optional := make([]merge.Update, 0, len(poolOptional))
	for _, u := range poolOptional {
		optional = append(optional, merge.FamilyUpdate(s, u.family, u.source, u.target))
	}

	pools, skipped, err := merge.MergeStrict(base, required, policy, "pool_id")
	if skipped > 0 {
		SkippedRecordsCnt.WithLabelValues("pools").Add(float64(skipped))
		zap.S().Warnw("pools skipped for missing data", "count", skipped)
	}
	merge.Merge(pools, optional, "pool_id")

	records := make([]PoolRecord, 0, len(pools))
	for _, p := range pools {
		records = append(records, poolRecord(p))
	}
	if len(records) == 0 && skipped > 0 {
		return records, PoolsIncomplete, err
	}

	return records, "", err
}

func poolRecord(p merge.Record) PoolRecord {
	r := PoolRecord{
		ID:            p.Label("pool_id"),
		Name:          p.Label("name"),
		ReadOps:       p.Float("pool_rd"),
		WriteOps:      p.Float("pool_wr"),
		ReadBytes:     p.Float("pool_rd_bytes"),
		WriteBytes:    p.Float("pool_wr_bytes"),
		StoredBytes:   p.Float("stored_bytes"),
		MaxAvailBytes: p.Float("max_avail_bytes"),
		PGs:           int(p.Float("pg_count")),
		PGsActive:     int(p.Float("pg_active")),
		RecoveryRate:  p.Float("recovery_rate"),
	}

	switch mode, ok := p.Labels["compression_mode"]; {
	case !ok:
		r.Compression = "N/A"
	case mode == compressionNone:
		r.Compression = "OFF"
	default:
		r.Compression = "ON"
	}

	r.IOPS = r.ReadOps + r.WriteOps
	r.Throughput = humanRate(r.ReadBytes + r.WriteBytes)
	r.Stored = humanBytes(r.StoredBytes, true)
	r.Avail = humanBytes(r.MaxAvailBytes, true)
	r.SavingsBytes = p.Float("compress_under_bytes") - p.Float("compress_bytes_used")
	r.Savings = humanBytes(r.SavingsBytes, true)

	r.Health = "OK"
	if r.RecoveryRate != 0 {
		r.Health = "RECOVERING"
	}

	r.UsedPct = "N/A"
	if p.Has("percent_used") {
		r.HasPercentUsed = true
		r.PercentUsed = p.Float("percent_used")
		r.UsedPct = fmt.Sprintf("%.1f", r.PercentUsed)
	}

	return r
}
