// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmitDropCnt counts messages a watch could not deliver.
	EmitDropCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmon_watch_emit_dropped_total", Help: "The total number of watch messages dropped",
	}, []string{"reason"})

	// SkippedTicksCnt counts ticks that found a scrape still in flight.
	SkippedTicksCnt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cmon_scrape_skipped_ticks_total", Help: "The total number of refresh ticks skipped while a scrape was in flight",
	})

	// SkippedPollsCnt counts poll ticks that found the previous poll still running.
	SkippedPollsCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmon_poll_skipped_ticks_total", Help: "The total number of poll ticks skipped while a poll was in flight",
	}, []string{"poller"})
)
