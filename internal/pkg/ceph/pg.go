package ceph

import (
	"math"

	"cmon/internal/pkg/store"

	"go.uber.org/zap"
)

// CategoryTotal is a PG count and its share of all PGs in percent.
type CategoryTotal struct {
	Total float64 `json:"total"`
	Pct   float64 `json:"pct"`
}

// PGSummary buckets placement groups into health categories.
type PGSummary struct {
	Total   float64       `json:"total"`
	OK      CategoryTotal `json:"ok"`
	Warning CategoryTotal `json:"warning"`
	Error   CategoryTotal `json:"error"`
	Unknown CategoryTotal `json:"unknown"`
}

var (
	pgErrorStates   = []string{"ceph_pg_stale", "ceph_pg_down", "ceph_pg_failed_repair"}
	pgUnknownStates = []string{"ceph_pg_unknown"}
)

func newCategory(n, total float64) CategoryTotal {
	if total == 0 {
		return CategoryTotal{Total: n}
	}

	return CategoryTotal{Total: n, Pct: n / total * 100}
}

// PGSummaryOf computes the category breakdown. A PG can be in several states
// at once, so explicit categories are assigned in severity order (error,
// unknown, OK) and each is capped at what is left of the total; the
// remainder is the warning category. Percentages therefore never sum past
// 100, and are all 0 when there are no PGs.
func PGSummaryOf(s *store.Snapshot) PGSummary {
	total := sumValues(s, "ceph_pg_total")

	var errCnt, unknownCnt float64
	for _, name := range pgErrorStates {
		errCnt += sumValues(s, name)
	}
	for _, name := range pgUnknownStates {
		unknownCnt += sumValues(s, name)
	}
	// OK means active and clean
	okCnt := math.Min(sumValues(s, "ceph_pg_active"), sumValues(s, "ceph_pg_clean"))

	remaining := total
	take := func(n float64) float64 {
		n = math.Max(0, math.Min(n, remaining))
		remaining -= n
		return n
	}
	errCnt = take(errCnt)
	unknownCnt = take(unknownCnt)
	okCnt = take(okCnt)

	summary := PGSummary{
		Total:   total,
		OK:      newCategory(okCnt, total),
		Error:   newCategory(errCnt, total),
		Unknown: newCategory(unknownCnt, total),
		Warning: newCategory(remaining, total),
	}
	zap.S().Debugw("PG category breakdown", "summary", summary)

	return summary
}
