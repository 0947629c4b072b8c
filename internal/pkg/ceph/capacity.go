package ceph

import (
	"strings"

	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/store"
)

// CapacityInfo is the raw capacity and compression picture of the cluster.
type CapacityInfo struct {
	TotalBytes              float64 `json:"total_bytes"`
	UsedBytes               float64 `json:"used_bytes"`
	DisksTotal              int     `json:"disks_total"`
	CompressedPools         int     `json:"compressed_pools_count"`
	CompressionSavingsBytes float64 `json:"compression_savings_bytes"`
}

// Free returns the unused raw bytes.
func (c CapacityInfo) Free() float64 {
	return c.TotalBytes - c.UsedBytes
}

// PercentUsed returns used/total in percent, 0 for an empty cluster.
func (c CapacityInfo) PercentUsed() float64 {
	if c.TotalBytes == 0 {
		return 0
	}

	return c.UsedBytes / c.TotalBytes * 100
}

const compressionNone = "none"

// Capacity reads the cluster totals, counts distinct physical disks and
// adds up compression savings of pools with compression enabled.
func Capacity(s *store.Snapshot) CapacityInfo {
	info := CapacityInfo{
		TotalBytes: singleton(s, "ceph_cluster_total_bytes"),
		UsedBytes:  singleton(s, "ceph_cluster_total_used_bytes"),
	}

	disks := map[string]struct{}{}
	for _, i := range s.Instances("ceph_disk_occupation") {
		for _, dev := range diskDevices(i.Labels) {
			disks[i.Label("instance")+"-"+dev] = struct{}{}
		}
	}
	info.DisksTotal = len(disks)

	pools := merge.Merge(merge.FromFamily(s, "ceph_pool_metadata"), []merge.Update{
		merge.FamilyUpdate(s, "ceph_pool_compress_under_bytes", merge.FieldValue, "compress_under_bytes"),
		merge.FamilyUpdate(s, "ceph_pool_compress_bytes_used", merge.FieldValue, "compress_used_bytes"),
	}, "pool_id")

	var under, used float64
	for _, p := range pools {
		if p.Label("compression_mode") == compressionNone {
			continue
		}
		if _, ok := p.Labels["compression_mode"]; ok {
			info.CompressedPools++
		}
		under += p.Float("compress_under_bytes")
		used += p.Float("compress_used_bytes")
	}
	info.CompressionSavingsBytes = under - used

	return info
}

// diskDevices returns the devices behind one OSD. Octopus and later
// publish device_ids as "sda=ID1,sdb=ID2"; Nautilus only has device.
func diskDevices(labels map[string]string) []string {
	if ids := labels["device_ids"]; ids != "" {
		var devs []string
		for _, pair := range strings.Split(ids, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			if _, name, ok := strings.Cut(pair, "="); ok {
				pair = name
			}
			devs = append(devs, pair)
		}
		return devs
	}

	if dev := labels["device"]; dev != "" {
		return []string{dev}
	}

	return nil
}
