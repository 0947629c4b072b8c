package mahttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RejectedRequestsCnt counts requests refused by host header validation.
var RejectedRequestsCnt = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cmon_http_rejected_requests_total", Help: "The total number of HTTP requests rejected for their host header",
}, []string{"path"})
