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
	"sync"
)

// WatchersRegisterer is an interface for managing the host's watchers.
type WatchersRegisterer interface {
	Register(w ...Watcher) error
	Start(ch ...chan<- interface{}) error
	RegisterAndStart(w Watcher, ch ...chan<- interface{}) error
	Stop()
	Wait()
}

// Registry type
type Registry struct {
	watch      []*WatcherInstance
	watcherMap map[Watcher]struct{}
	*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		watch:      []*WatcherInstance{},
		watcherMap: make(map[Watcher]struct{}),
		Mutex:      &sync.Mutex{},
	}
}

// WatcherInstance describes a state of a single
// watcher that's inside the registry.
type WatcherInstance struct {
	started bool
	watcher Watcher
	*sync.Mutex
}

// Register registers one or more watchers. Registering the same watcher
// twice is a no-op.
func (r *Registry) Register(w ...Watcher) error {
	r.Lock()
	defer r.Unlock()
	for _, watcher := range w {
		_, err := r.register(watcher)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) register(watcher Watcher) (*WatcherInstance, error) {
	if _, ok := r.watcherMap[watcher]; ok {
		for _, instance := range r.watch {
			if instance.watcher == watcher {
				return instance, nil
			}
		}
	}

	instance := &WatcherInstance{
		watcher: watcher,
		Mutex:   &sync.Mutex{},
	}
	r.watch = append(r.watch, instance)
	r.watcherMap[watcher] = struct{}{}

	return instance, nil
}

// RegisterAndStart attempts to register and start a single watcher.
func (r *Registry) RegisterAndStart(w Watcher, ch ...chan<- interface{}) error {
	r.Lock()
	defer r.Unlock()

	instance, err := r.register(w)
	if err != nil {
		return err
	}

	return start(ch, instance)
}

// Start starts a watch by subscribing to one or more channels
// for emitting collected data.
// Calling Start multiple times will start watchers that haven't
// been started, and will act as a no-op for already running watchers, even
// if ch parameter is different.
func (r *Registry) Start(ch ...chan<- interface{}) error {
	r.Lock()
	defer r.Unlock()
	return start(ch, r.watch...)
}

func start(ch []chan<- interface{}, instances ...*WatcherInstance) error {
	for _, w := range instances {
		if w.started {
			continue
		}

		for _, c := range ch {
			if c != nil {
				w.watcher.Subscribe(c)
			}
		}

		Start(w.watcher)
		w.started = true
	}

	return nil
}

// Stop stops all registered watches
func (r *Registry) Stop() {
	r.Lock()
	defer r.Unlock()
	for _, w := range r.watch {
		w.watcher.Stop()
		w.started = false
	}
}

// Wait for all registered watches to finish
func (r *Registry) Wait() {
	for _, w := range r.watch {
		w.watcher.Wait()
	}
}
