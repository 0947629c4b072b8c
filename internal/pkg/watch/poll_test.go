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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func recvPoll(t *testing.T, ch <-chan interface{}) PollEvent {
	t.Helper()

	select {
	case msg := <-ch:
		ev, ok := msg.(PollEvent)
		require.True(t, ok)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for poll event")
	}

	return PollEvent{}
}

func TestPollWatch_Immediate(t *testing.T) {
	var calls int32
	w := NewPollWatch(PollWatchConf{
		Name:      "alerts",
		Interval:  time.Hour,
		Immediate: true,
		Poller: PollerFunc(func(ctx context.Context, now time.Time) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}),
	})
	ch := make(chan interface{}, 10)
	w.Subscribe(ch)
	Start(w)
	defer w.Stop()

	ev := recvPoll(t, ch)
	require.Equal(t, "alerts", ev.Name)
	require.NoError(t, ev.Err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPollWatch_Error(t *testing.T) {
	errPoll := errors.New("prometheus down")
	w := NewPollWatch(PollWatchConf{
		Name:     "ioload",
		Interval: time.Hour,
		Poller: PollerFunc(func(ctx context.Context, now time.Time) error {
			return errPoll
		}),
	})
	ch := make(chan interface{}, 10)
	w.Subscribe(ch)
	Start(w)
	defer w.Stop()

	now := time.Unix(1625086800, 0)
	require.True(t, w.Tick(now))
	ev := recvPoll(t, ch)
	require.True(t, errors.Is(ev.Err, errPoll))
	require.Equal(t, now, ev.At)
}

func TestPollWatch_SingleInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	w := NewPollWatch(PollWatchConf{
		Interval: time.Hour,
		Poller: PollerFunc(func(ctx context.Context, now time.Time) error {
			atomic.AddInt32(&calls, 1)
			<-release
			return nil
		}),
	})
	ch := make(chan interface{}, 10)
	w.Subscribe(ch)
	Start(w)
	defer w.Stop()

	require.True(t, w.Tick(time.Now()))
	require.False(t, w.Tick(time.Now()))

	close(release)
	recvPoll(t, ch)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Eventually(t, func() bool { return w.Tick(time.Now()) }, time.Second, 10*time.Millisecond)
}

func TestPollWatch_StopCancelsPoll(t *testing.T) {
	w := NewPollWatch(PollWatchConf{
		Interval: time.Hour,
		Poller: PollerFunc(func(ctx context.Context, now time.Time) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})
	ch := make(chan interface{}, 10)
	w.Subscribe(ch)
	Start(w)

	require.True(t, w.Tick(time.Now()))
	w.Stop()
	w.Wait()

	select {
	case msg := <-ch:
		t.Fatalf("unexpected event after stop: %v", msg)
	default:
	}
}
