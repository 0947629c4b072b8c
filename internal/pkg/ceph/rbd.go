package ceph

import (
	"sort"

	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RBDImageRecord is the per image performance view.
type RBDImageRecord struct {
	Pool      string `json:"pool"`
	Namespace string `json:"namespace"`
	Image     string `json:"image"`

	ReadOps         float64 `json:"read_ops"`
	WriteOps        float64 `json:"write_ops"`
	TotalOps        float64 `json:"total_ops"`
	ReadBytes       float64 `json:"read_bytes"`
	WriteBytes      float64 `json:"write_bytes"`
	ReadThroughput  string  `json:"read_throughput"`
	WriteThroughput string  `json:"write_throughput"`

	// average latency per op over the last interval, in microseconds
	ReadLatencyUS  float64 `json:"read_latency_us"`
	WriteLatencyUS float64 `json:"write_latency_us"`
}

// NoRBDImages is the reason given when the RBD view is empty.
const NoRBDImages = "no RBD images found"

// RBDIncomplete is the reason given when every image was skipped for
// missing data.
const RBDIncomplete = "RBD data incomplete"

var rbdKeys = []string{"pool", "namespace", "image"}

// rbdFamilies are joined onto ceph_rbd_read_ops; every image must have them.
var rbdFamilies = []struct{ family, target string }{
	{"ceph_rbd_write_ops", "write_ops"},
	{"ceph_rbd_read_bytes", "read_bytes"},
	{"ceph_rbd_write_bytes", "write_bytes"},
	{"ceph_rbd_read_latency_sum", "read_latency_sum"},
	{"ceph_rbd_read_latency_count", "read_latency_count"},
	{"ceph_rbd_write_latency_sum", "write_latency_sum"},
	{"ceph_rbd_write_latency_count", "write_latency_count"},
}

// RBDPerformance joins the per image families on pool|namespace|image.
// There may be thousands of images, so the join is indexed. An image
// missing from a secondary family, or a secondary entry for an unknown
// image, is a data integrity fault handled according to policy.
func RBDPerformance(s *store.Snapshot, policy merge.Policy) ([]RBDImageRecord, string, error) {
	base := merge.FromFamily(s, "ceph_rbd_read_ops")
	if len(base) == 0 {
		return []RBDImageRecord{}, NoRBDImages, nil
	}
	base = merge.Relabel(base, merge.FieldDelta, "read_ops")

	updates := make([]merge.Update, 0, len(rbdFamilies))
	for _, f := range rbdFamilies {
		updates = append(updates, merge.FamilyUpdate(s, f.family, merge.FieldDelta, f.target))
	}

	baseIdx := merge.NewIndex(base, rbdKeys...)
	var orphans error
	for _, u := range updates {
		for _, r := range u.Records {
			if _, ok := baseIdx.Lookup(r); !ok {
				orphans = multierr.Append(orphans, &merge.IntegrityError{
					Key: merge.DisplayKey(r, rbdKeys...), Target: "read_ops",
				})
			}
		}
	}

	images, skipped, err := merge.MergeIndexedStrict(base, updates, policy, rbdKeys...)
	if policy == merge.PolicySkip {
		if n := len(multierr.Errors(orphans)); n > 0 {
			zap.S().Warnw("RBD entries without a matching image ignored", "count", n)
		}
		orphans = nil
	}
	if skipped > 0 {
		SkippedRecordsCnt.WithLabelValues("rbd").Add(float64(skipped))
		zap.S().Warnw("RBD images skipped for missing data", "count", skipped)
	}

	records := make([]RBDImageRecord, 0, len(images))
	for _, img := range images {
		records = append(records, rbdRecord(img))
	}

	reason := ""
	if len(records) == 0 && skipped > 0 {
		reason = RBDIncomplete
	}

	return records, reason, multierr.Append(err, orphans)
}

func rbdRecord(img merge.Record) RBDImageRecord {
	r := RBDImageRecord{
		Pool:       img.Label("pool"),
		Namespace:  img.Label("namespace"),
		Image:      img.Label("image"),
		ReadOps:    img.Float("read_ops"),
		WriteOps:   img.Float("write_ops"),
		ReadBytes:  img.Float("read_bytes"),
		WriteBytes: img.Float("write_bytes"),
	}
	r.TotalOps = r.ReadOps + r.WriteOps
	r.ReadThroughput = humanRate(r.ReadBytes)
	r.WriteThroughput = humanRate(r.WriteBytes)
	r.ReadLatencyUS = latencyUS(img.Float("read_latency_sum"), img.Float("read_latency_count"))
	r.WriteLatencyUS = latencyUS(img.Float("write_latency_sum"), img.Float("write_latency_count"))

	return r
}

// latencyUS is the mean seconds per op scaled to microseconds, 0 when no
// ops completed.
func latencyUS(sum, count float64) float64 {
	if count <= 0 {
		return 0
	}

	return sum / count * 1e6
}

// TopRBD returns the n busiest images by total ops.
func TopRBD(records []RBDImageRecord, n int) []RBDImageRecord {
	sorted := make([]RBDImageRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TotalOps > sorted[j].TotalOps })
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}

	return sorted
}
