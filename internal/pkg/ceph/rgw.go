package ceph

import (
	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/store"
)

// RGWDaemonRecord is the per gateway performance view.
type RGWDaemonRecord struct {
	Daemon   string `json:"ceph_daemon"`
	Hostname string `json:"hostname"`
	Version  string `json:"ceph_version"`

	Gets          float64 `json:"gets"`
	Puts          float64 `json:"puts"`
	GetBytes      float64 `json:"get_bytes"`
	PutBytes      float64 `json:"put_bytes"`
	GetThroughput string  `json:"get_throughput"`
	PutThroughput string  `json:"put_throughput"`
}

// NoRGWDaemons is the reason given when the RGW view is empty.
const NoRGWDaemons = "no RGW daemons found"

// RGWPerformance joins the gateway counters onto ceph_rgw_metadata by
// ceph_daemon. Where ceph-exporter is deployed, mgr/prometheus no longer
// publishes the counters, so missing data reads as 0 rather than a fault.
func RGWPerformance(s *store.Snapshot) ([]RGWDaemonRecord, string) {
	base := merge.FromFamily(s, "ceph_rgw_metadata")
	if len(base) == 0 {
		return []RGWDaemonRecord{}, NoRGWDaemons
	}

	gws := merge.Merge(base, []merge.Update{
		merge.FamilyUpdate(s, "ceph_rgw_get", merge.FieldDelta, "gets"),
		merge.FamilyUpdate(s, "ceph_rgw_put", merge.FieldDelta, "puts"),
		merge.FamilyUpdate(s, "ceph_rgw_get_b", merge.FieldDelta, "get_b"),
		merge.FamilyUpdate(s, "ceph_rgw_put_b", merge.FieldDelta, "put_b"),
	}, "ceph_daemon")

	records := make([]RGWDaemonRecord, 0, len(gws))
	for _, gw := range gws {
		records = append(records, RGWDaemonRecord{
			Daemon:        gw.Label("ceph_daemon"),
			Hostname:      gw.Label("hostname"),
			Version:       MajorVersion(gw.Label("ceph_version")),
			Gets:          gw.Float("gets"),
			Puts:          gw.Float("puts"),
			GetBytes:      gw.Float("get_b"),
			PutBytes:      gw.Float("put_b"),
			GetThroughput: humanRate(gw.Float("get_b")),
			PutThroughput: humanRate(gw.Float("put_b")),
		})
	}

	return records, ""
}
