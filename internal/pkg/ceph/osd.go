package ceph

import (
	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/store"
)

// OSDRecord is the per OSD summary.
type OSDRecord struct {
	Daemon      string  `json:"ceph_daemon"`
	Hostname    string  `json:"hostname"`
	DeviceClass string  `json:"device_class"`
	Up          bool    `json:"up"`
	In          bool    `json:"in"`
	SizeBytes   float64 `json:"size_bytes"`
	UsedBytes   float64 `json:"used_bytes"`
	PercentUsed float64 `json:"percent_used"`
}

// NoOSDs is the reason given when the OSD view is empty.
const NoOSDs = "no OSDs found"

// OSDSummary joins OSD state and utilisation onto ceph_osd_metadata.
func OSDSummary(s *store.Snapshot) ([]OSDRecord, string) {
	base := merge.FromFamily(s, "ceph_osd_metadata")
	if len(base) == 0 {
		return []OSDRecord{}, NoOSDs
	}

	osds := merge.Merge(base, []merge.Update{
		merge.FamilyUpdate(s, "ceph_osd_up", merge.FieldValue, "up"),
		merge.FamilyUpdate(s, "ceph_osd_in", merge.FieldValue, "in"),
		merge.FamilyUpdate(s, "ceph_osd_stat_bytes", merge.FieldValue, "size_bytes"),
		merge.FamilyUpdate(s, "ceph_osd_stat_bytes_used", merge.FieldValue, "bytes_used"),
	}, "ceph_daemon")

	records := make([]OSDRecord, 0, len(osds))
	for _, o := range osds {
		r := OSDRecord{
			Daemon:      o.Label("ceph_daemon"),
			Hostname:    o.Label("hostname"),
			DeviceClass: o.Label("device_class"),
			Up:          o.Float("up") == 1,
			In:          o.Float("in") == 1,
			SizeBytes:   o.Float("size_bytes"),
			UsedBytes:   o.Float("bytes_used"),
		}
		if r.SizeBytes > 0 {
			r.PercentUsed = r.UsedBytes / r.SizeBytes * 100
		}
		records = append(records, r)
	}

	return records, ""
}
