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
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// *** PollWatch ***

// Poller does one unit of periodic background work, such as refreshing
// alerts from Prometheus.
type Poller interface {
	Poll(ctx context.Context, now time.Time) error
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func(ctx context.Context, now time.Time) error

// Poll calls f.
func (f PollerFunc) Poll(ctx context.Context, now time.Time) error {
	return f(ctx, now)
}

// PollWatchConf PollWatch configuration struct.
type PollWatchConf struct {
	// Name identifies the poller in events and logs.
	Name string

	Interval time.Duration

	// Timeout bounds one poll, capped to Interval.
	Timeout time.Duration

	// Immediate polls once on start rather than after the first interval.
	Immediate bool

	Poller Poller
}

// PollEvent is emitted after every completed poll.
type PollEvent struct {
	Name     string
	At       time.Time
	Err      error
	Duration time.Duration
}

// PollWatch implements Watcher interface.
// Calls its Poller on every tick with at most one poll in flight.
type PollWatch struct {
	PollWatchConf
	Watch

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPollWatch poll watch constructor.
func NewPollWatch(conf PollWatchConf) *PollWatch {
	w := new(PollWatch)
	w.Watch = NewWatch()
	w.PollWatchConf = conf

	if w.Interval < 1 {
		w.Log.Debug("Using default interval of one second since none was provided.")
		w.Interval = time.Second
	}
	if w.Timeout < 1 || w.Timeout > w.Interval {
		w.Timeout = w.Interval
	}
	w.Log = w.Log.With("poller", w.Name)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	return w
}

// StartUnsafe sets watch running state to true
// and starts the poll loop.
func (w *PollWatch) StartUnsafe() {
	w.Watch.StartUnsafe()

	w.wg.Add(1)
	go w.pollLoop()
}

// Stop stops the poll loop and cancels any poll in flight.
func (w *PollWatch) Stop() {
	w.cancel()
	w.Watch.Stop()
}

func (w *PollWatch) pollLoop() {
	defer w.wg.Done()

	if w.Immediate {
		w.Tick(time.Now())
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case t := <-ticker.C:
			w.Tick(t)

		case <-w.StopKey:
			return
		}
	}
}

// Tick starts a poll at now unless one is already running, and reports
// whether it did.
func (w *PollWatch) Tick(now time.Time) bool {
	if !w.busy.CompareAndSwap(false, true) {
		SkippedPollsCnt.WithLabelValues(w.Name).Inc()
		w.Log.Debug("previous poll still in flight, skipping tick")

		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.busy.Store(false)

		w.poll(now)
	}()

	return true
}

func (w *PollWatch) poll(now time.Time) {
	ctx, cancel := context.WithTimeout(w.ctx, w.Timeout)
	defer cancel()

	t := time.Now()
	err := w.Poller.Poll(ctx, now)
	if w.ctx.Err() != nil {
		return
	}
	if err != nil {
		w.Log.Warnw("poll failed", zap.Error(err))
	}

	w.Emit(PollEvent{Name: w.Name, At: now, Err: err, Duration: time.Since(t)})
}
