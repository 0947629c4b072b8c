package mahttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"cmon/internal/pkg/ceph"
	"cmon/internal/pkg/merge"
	"cmon/internal/pkg/promapi"
	"cmon/internal/pkg/store"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SnapshotSource provides the latest store snapshot.
type SnapshotSource interface {
	Snapshot() *store.Snapshot
	Scraped() bool
}

// API serves derived views of the latest snapshot as JSON.
type API struct {
	Source SnapshotSource
	Policy merge.Policy

	alerts atomic.Pointer[alertState]
	ioload atomic.Pointer[ioloadState]
}

type alertState struct {
	Alerts []promapi.Alert
	Err    error
}

type ioloadState struct {
	Load promapi.IOLoad
	Err  error
}

// NewAPI API constructor.
func NewAPI(src SnapshotSource, policy merge.Policy) *API {
	return &API{Source: src, Policy: policy}
}

// SetAlerts stores the result of the latest alerts poll.
func (a *API) SetAlerts(alerts []promapi.Alert, err error) {
	a.alerts.Store(&alertState{Alerts: alerts, Err: err})
}

// SetIOLoad stores the result of the latest IO load history poll.
func (a *API) SetIOLoad(load promapi.IOLoad, err error) {
	a.ioload.Store(&ioloadState{Load: load, Err: err})
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/summary", ValidationMiddleware(http.HandlerFunc(a.summary)))
	mux.Handle("/api/v1/pools", ValidationMiddleware(http.HandlerFunc(a.pools)))
	mux.Handle("/api/v1/rbd", ValidationMiddleware(http.HandlerFunc(a.rbd)))
	mux.Handle("/api/v1/rgw", ValidationMiddleware(http.HandlerFunc(a.rgw)))
	mux.Handle("/api/v1/osd", ValidationMiddleware(http.HandlerFunc(a.osd)))
	mux.Handle("/api/v1/alerts", ValidationMiddleware(http.HandlerFunc(a.alertsHandler)))
	mux.Handle("/api/v1/ioload", ValidationMiddleware(http.HandlerFunc(a.ioloadHandler)))
}

// Summary is the cluster overview.
type Summary struct {
	Timestamp  int64               `json:"timestamp"`
	Scraped    bool                `json:"scraped"`
	Health     string              `json:"health"`
	IOPS       float64             `json:"iops"`
	Throughput float64             `json:"throughput"`
	Version    string              `json:"version"`
	Capacity   ceph.CapacityInfo   `json:"capacity"`
	Raw        string              `json:"raw"`
	PGs        ceph.PGSummary      `json:"pgs"`
	Inventory  ceph.InventoryState `json:"inventory"`
	Errors     []string            `json:"errors,omitempty"`
}

// BuildSummary computes the overview from s. Views that fail are reported
// in Errors and leave their fields zero.
func BuildSummary(s *store.Snapshot) Summary {
	sum := Summary{
		Timestamp: s.Timestamp,
		Capacity:  ceph.Capacity(s),
		PGs:       ceph.PGSummaryOf(s),
		Inventory: ceph.Inventory(s),
	}
	sum.Version = sum.Inventory.Versions.Summary()
	sum.Raw = humanize.IBytes(uint64(sum.Capacity.UsedBytes)) + " / " + humanize.IBytes(uint64(sum.Capacity.TotalBytes))

	var err error
	if sum.Health, err = ceph.Health(s); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
	}
	if sum.IOPS, err = ceph.TotalIOPS(s); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
	}
	if sum.Throughput, err = ceph.TotalThroughput(s); err != nil {
		sum.Errors = append(sum.Errors, err.Error())
	}

	return sum
}

// ViewResponse wraps the records of a table view.
type ViewResponse struct {
	Timestamp int64       `json:"timestamp"`
	Records   interface{} `json:"records"`
	Reason    string      `json:"reason,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
}

func (a *API) summary(w http.ResponseWriter, r *http.Request) {
	sum := BuildSummary(a.Source.Snapshot())
	sum.Scraped = a.Source.Scraped()

	writeJSON(w, sum)
}

func (a *API) pools(w http.ResponseWriter, r *http.Request) {
	s := a.Source.Snapshot()
	records, reason, err := ceph.Pools(s, a.Policy)

	writeJSON(w, ViewResponse{Timestamp: s.Timestamp, Records: records, Reason: reason, Errors: errorStrings(err)})
}

func (a *API) rbd(w http.ResponseWriter, r *http.Request) {
	s := a.Source.Snapshot()
	records, reason, err := ceph.RBDPerformance(s, a.Policy)

	if top := r.URL.Query().Get("top"); top != "" {
		n, convErr := strconv.Atoi(top)
		if convErr != nil || n < 0 {
			http.Error(w, "top must be a non-negative integer", http.StatusBadRequest)
			return
		}
		records = ceph.TopRBD(records, n)
	}

	writeJSON(w, ViewResponse{Timestamp: s.Timestamp, Records: records, Reason: reason, Errors: errorStrings(err)})
}

func (a *API) rgw(w http.ResponseWriter, r *http.Request) {
	s := a.Source.Snapshot()
	records, reason := ceph.RGWPerformance(s)

	writeJSON(w, ViewResponse{Timestamp: s.Timestamp, Records: records, Reason: reason})
}

func (a *API) osd(w http.ResponseWriter, r *http.Request) {
	s := a.Source.Snapshot()
	records, reason := ceph.OSDSummary(s)

	writeJSON(w, ViewResponse{Timestamp: s.Timestamp, Records: records, Reason: reason})
}

func (a *API) alertsHandler(w http.ResponseWriter, r *http.Request) {
	st := a.alerts.Load()
	if st == nil {
		writeJSON(w, ViewResponse{Records: []promapi.Alert{}, Reason: "alerts not configured"})
		return
	}
	if st.Err != nil {
		writeJSON(w, ViewResponse{Records: []promapi.Alert{}, Reason: "unable to retrieve alerts", Errors: errorStrings(st.Err)})
		return
	}

	reason := ""
	if len(st.Alerts) == 0 {
		reason = "no alerts"
	}
	writeJSON(w, ViewResponse{Timestamp: time.Now().Unix(), Records: st.Alerts, Reason: reason})
}

func (a *API) ioloadHandler(w http.ResponseWriter, r *http.Request) {
	st := a.ioload.Load()
	if st == nil {
		writeJSON(w, ViewResponse{Records: promapi.IOLoad{}, Reason: "prometheus url is needed to show IO load"})
		return
	}

	writeJSON(w, ViewResponse{Timestamp: time.Now().Unix(), Records: st.Load, Errors: errorStrings(st.Err)})
}

func errorStrings(err error) []string {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}

	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("failed to encode response", zap.Error(err))
	}
}
