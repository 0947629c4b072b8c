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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndStart(t *testing.T) {
	w := NewWatch()
	registry := NewRegistry()

	err := registry.RegisterAndStart(&w, nil)
	require.NoError(t, err)
	require.Len(t, registry.watch, 1)

	w.Lock()
	require.True(t, w.Running)
	w.Unlock()

	registry.Stop()
	registry.Wait()
	w.Lock()
	require.False(t, w.Running)
	w.Unlock()
}

func TestRegistry_Register_MultipleCalls(t *testing.T) {
	w := NewWatch()
	w.listeners = make([]chan<- interface{}, 0)
	w.listeners = append(w.listeners, make(chan<- interface{}))
	registry := NewRegistry()

	var err error
	err = registry.Register(&w)
	require.NoError(t, err)
	err = registry.Register(&w)
	require.NoError(t, err)

	// expect idempotency - only 1 watcher should exist in registry
	require.Len(t, registry.watch, 1)
}

func TestRegistry_Register_Regression(t *testing.T) {
	// ensure that the registration continues to work
	// both for different instances of same type of watchers
	// as well as different watcher types
	w1 := NewPollWatch(PollWatchConf{Poller: nopPoller})
	w2 := NewScrapeWatch(ScrapeWatchConf{Updater: &mockUpdater{}})
	w3 := NewPollWatch(PollWatchConf{Poller: nopPoller})
	w1.Subscribe(make(chan<- interface{}))
	w2.Subscribe(make(chan<- interface{}))
	w3.Subscribe(make(chan<- interface{}))

	registry := NewRegistry()

	err := registry.Register(w1, w2, w3)
	require.NoError(t, err)
	require.Len(t, registry.watch, 3)

	err = registry.Register(w3, w2, w1)
	require.NoError(t, err)
	require.Len(t, registry.watch, 3)
}

var nopPoller = PollerFunc(func(context.Context, time.Time) error { return nil })

func TestRegistry_Start(t *testing.T) {
	w := NewPollWatch(PollWatchConf{Name: "nop", Interval: 10 * time.Millisecond, Poller: nopPoller})
	registry := NewRegistry()
	require.NoError(t, registry.Register(w))

	ch := make(chan interface{}, 10)
	require.NoError(t, registry.Start(ch))
	defer func() {
		registry.Stop()
		registry.Wait()
	}()

	select {
	case msg := <-ch:
		ev, ok := msg.(PollEvent)
		require.True(t, ok)
		require.Equal(t, "nop", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for poll event")
	}
}
