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

	"cmon/internal/pkg/store"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// *** ScrapeWatch ***

// Updater runs one store update cycle.
type Updater interface {
	Update(ctx context.Context) (store.Result, error)
}

// ScrapeWatchConf ScrapeWatch configuration struct.
type ScrapeWatchConf struct {
	// Interval between ticks, the dashboard refresh interval.
	Interval time.Duration

	// Timeout bounds one whole update cycle.
	Timeout time.Duration

	Updater Updater
}

// ScrapeEvent is emitted after every completed update cycle.
type ScrapeEvent struct {
	Result   store.Result
	Err      error
	Duration time.Duration

	// Fatal is set once the store gave up; the host is expected to stop.
	Fatal bool
}

// ScrapeWatch implements Watcher interface.
// Runs one store update per tick in the background with at most one in
// flight. A tick that finds the previous update still running is skipped.
type ScrapeWatch struct {
	ScrapeWatchConf
	Watch

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScrapeWatch scrape watch constructor.
func NewScrapeWatch(conf ScrapeWatchConf) *ScrapeWatch {
	w := new(ScrapeWatch)
	w.Watch = NewWatch()
	w.ScrapeWatchConf = conf

	if w.Interval < 1 {
		w.Interval = 15 * time.Second
	}
	if w.Timeout < 1 || w.Timeout > w.Interval {
		w.Log.Debugw("scrape timeout capped to refresh interval", "timeout", w.Timeout, "interval", w.Interval)
		w.Timeout = w.Interval
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	return w
}

// StartUnsafe sets watch running state to true
// and starts the tick loop.
func (w *ScrapeWatch) StartUnsafe() {
	w.Watch.StartUnsafe()

	w.wg.Add(1)
	go w.tickLoop()
}

// Stop stops the tick loop and abandons any update in flight.
func (w *ScrapeWatch) Stop() {
	w.cancel()
	w.Watch.Stop()
}

func (w *ScrapeWatch) tickLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Tick()

		case <-w.StopKey:
			return
		}
	}
}

// Tick starts an update cycle unless one is already running, and reports
// whether it did.
func (w *ScrapeWatch) Tick() bool {
	if !w.busy.CompareAndSwap(false, true) {
		SkippedTicksCnt.Inc()
		w.Log.Debug("previous scrape still in flight, skipping tick")

		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.busy.Store(false)

		w.scrape()
	}()

	return true
}

func (w *ScrapeWatch) scrape() {
	ctx, cancel := context.WithTimeout(w.ctx, w.Timeout)
	defer cancel()

	t := time.Now()
	res, err := w.Updater.Update(ctx)
	ev := ScrapeEvent{
		Result:   res,
		Err:      err,
		Duration: time.Since(t),
		Fatal:    errors.Is(err, store.ErrFatal) || errors.Is(err, store.ErrTerminated),
	}

	if w.ctx.Err() != nil {
		w.Log.Debugw("watch stopped, discarding scrape result", zap.Error(err))
		return
	}

	if ev.Fatal {
		w.Log.Errorw("store terminated", zap.Error(err))
		w.EmitWait(ev)

		return
	}
	w.Emit(ev)
}
