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

package store

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cmon/internal/pkg/fetch"
	"cmon/pkg/models"
	"cmon/pkg/parse"
	"cmon/pkg/parse/openmetrics"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrInvalidEndpoint the exporter URL failed validation at Build.
	ErrInvalidEndpoint = errors.New("invalid exporter endpoint")

	// ErrNoData Build could not retrieve an initial payload.
	ErrNoData = errors.New("no data from exporter")

	// ErrCycleFailed a scrape cycle failed and was skipped; prior state is kept.
	ErrCycleFailed = errors.New("scrape cycle failed")

	// ErrFatal the maximum number of consecutive failures was reached.
	// The store is terminated and the host is expected to stop.
	ErrFatal = errors.New("too many consecutive scrape failures")

	// ErrTerminated the store was used after a fatal failure.
	ErrTerminated = errors.New("store terminated")

	// ErrNotBuilt Update was called before a successful Build.
	ErrNotBuilt = errors.New("store not built")

	// ErrMixedFamily a family would hold both singleton and labeled instances.
	ErrMixedFamily = errors.New("family mixes singleton and labeled instances")
)

const (
	defaultMaxFailures    = 6
	defaultScrapeInterval = 15 * time.Second
)

// State of the store lifecycle.
type State int32

const (
	// StateUninitialized store created, Build not yet successful.
	StateUninitialized State = iota

	// StateBuilt store holds data and accepts updates.
	StateBuilt

	// StateUpdating an update is being applied.
	StateUpdating

	// StateTerminated max failures were reached.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateUpdating:
		return "updating"
	case StateTerminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// Fetcher retrieves one exposition payload.
type Fetcher interface {
	Fetch(ctx context.Context) (fetch.Payload, error)
}

// Decoder turns a payload body into samples.
type Decoder func(body []byte, ts int64) ([]models.Sample, error)

// DecodePositional uses the lenient line parser restricted to ceph metrics.
func DecodePositional(body []byte, ts int64) ([]models.Sample, error) {
	return parse.ParseExposition(body, ts, parse.CephFilter), nil
}

// DecodeStrict uses the expfmt text parser; any syntax error fails the payload.
func DecodeStrict(body []byte, ts int64) ([]models.Sample, error) {
	mf, err := openmetrics.ParsePEF(bytes.NewReader(body), parse.CephFilter)
	if err != nil {
		return nil, err
	}

	return openmetrics.ToSamples(mf, ts), nil
}

// Conf Store configuration struct.
type Conf struct {
	// URL of the mgr/prometheus exporter, validated by Build.
	URL string

	// ScrapeInterval must match the exporter's own scrape cadence, deltas
	// are divided by it.
	ScrapeInterval time.Duration

	// MaxFailures consecutive failed cycles before the store terminates.
	MaxFailures int

	Fetcher Fetcher
	Decoder Decoder
}

// Result summarizes one successful cycle.
type Result struct {
	Timestamp       int64
	Families        int
	Instances       int
	PrunedFamilies  int
	PrunedInstances int
}

// Store owns every known metric family. Build and Update are serialized;
// readers use Snapshot, which is swapped atomically after each success.
type Store struct {
	Conf

	families      map[string]*Family
	lastTimestamp int64
	mu            sync.Mutex
	log           *zap.SugaredLogger

	// read without mu so readers never wait on a fetch in flight
	failures atomic.Int32
	state    atomic.Int32
	snap     atomic.Pointer[Snapshot]
}

// New Store constructor. No I/O is performed until Build.
func New(conf Conf) *Store {
	if conf.MaxFailures < 1 {
		conf.MaxFailures = defaultMaxFailures
	}
	if conf.ScrapeInterval <= 0 {
		conf.ScrapeInterval = defaultScrapeInterval
	}
	if conf.Decoder == nil {
		conf.Decoder = DecodePositional
	}
	if conf.Fetcher == nil {
		conf.Fetcher = fetch.NewClient(fetch.ClientConf{URL: conf.URL})
	}

	s := &Store{
		Conf:     conf,
		families: make(map[string]*Family),
		log:      zap.S().With("url", conf.URL),
	}
	s.snap.Store(NewSnapshot(0))

	return s
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	return State(s.state.Load())
}

// Snapshot returns the latest published snapshot. It is never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// ConsecutiveFailures returns the number of failed cycles since the last
// successful one.
func (s *Store) ConsecutiveFailures() int {
	return int(s.failures.Load())
}

// Scraped reports whether the most recent cycle succeeded.
func (s *Store) Scraped() bool {
	return s.ConsecutiveFailures() == 0
}

// Build validates the endpoint and populates the store from one payload.
func (s *Store) Build(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateTerminated {
		return ErrTerminated
	}

	if err := fetch.ValidateEndpoint(ctx, s.URL); err != nil {
		s.log.Errorw("exporter URL is unusable", zap.Error(err))
		return errors.Wrap(ErrInvalidEndpoint, err.Error())
	}

	samples, ts, err := s.scrape(ctx)
	if err != nil {
		s.log.Errorw("unable to get data from mgr/prometheus endpoint", zap.Error(err))
		return errors.Wrap(ErrNoData, err.Error())
	}

	s.families = make(map[string]*Family)
	res := s.apply(samples, ts)
	s.failures.Store(0)
	s.publish(ts)
	s.state.Store(int32(StateBuilt))

	s.log.Infow("metrics built successfully", "families", res.Families, "instances", res.Instances)

	return nil
}

// Update performs one fetch+parse cycle. On success every sample is routed
// to its family and instance, and anything not resent is pruned. On failure
// the previous state is kept and an error wrapping ErrCycleFailed is
// returned, or ErrFatal once MaxFailures consecutive cycles have failed.
func (s *Store) Update(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateTerminated:
		return Result{}, ErrTerminated
	case StateUninitialized:
		return Result{}, ErrNotBuilt
	}

	t := time.Now()
	defer func() { ScrapeDuration.Observe(time.Since(t).Seconds()) }()

	samples, ts, err := s.scrape(ctx)
	if err != nil {
		return Result{}, s.fail(err)
	}

	s.state.Store(int32(StateUpdating))
	res := s.apply(samples, ts)
	s.failures.Store(0)
	ConsecutiveFailures.Set(0)
	s.publish(ts)
	s.state.Store(int32(StateBuilt))

	s.log.Infow("metrics update complete",
		"families", res.Families, "instances", res.Instances,
		"pruned_families", res.PrunedFamilies, "pruned_instances", res.PrunedInstances)

	return res, nil
}

func (s *Store) scrape(ctx context.Context) ([]models.Sample, int64, error) {
	p, err := s.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, p.Timestamp, err
	}
	if len(bytes.TrimSpace(p.Body)) == 0 {
		return nil, p.Timestamp, errors.Wrap(fetch.ErrUnavailable, "empty body")
	}

	samples, err := s.Decoder(p.Body, p.Timestamp)
	if err != nil {
		return nil, p.Timestamp, errors.Wrap(err, "failed to decode exporter payload")
	}

	return samples, p.Timestamp, nil
}

func (s *Store) fail(cause error) error {
	failures := int(s.failures.Add(1))
	ScrapeFailuresCnt.Inc()
	ConsecutiveFailures.Set(float64(failures))

	s.log.Errorw("unable to get latest data from mgr/prometheus endpoint",
		zap.Error(cause), "consecutive_failures", failures, "max_failures", s.MaxFailures)

	if failures >= s.MaxFailures {
		s.state.Store(int32(StateTerminated))
		s.log.Errorw("scrapes have failed too many times, terminating", "max_failures", s.MaxFailures)

		return errors.Wrapf(ErrFatal, "%d scrapes failed, last error: %v", failures, cause)
	}

	return errors.Wrapf(ErrCycleFailed, "failure %d of %d: %v", failures, s.MaxFailures, cause)
}

// apply routes samples into families and prunes whatever was not seen.
func (s *Store) apply(samples []models.Sample, ts int64) Result {
	interval := s.ScrapeInterval.Seconds()
	seen := make(map[string]map[LabelSetKey]struct{})

	for pos, sample := range samples {
		key := KeyFor(sample.Labels)

		keys, ok := seen[sample.Name]
		if !ok {
			keys = make(map[LabelSetKey]struct{})
		}
		if mixesShapes(keys, key) {
			DroppedSamplesCnt.WithLabelValues("mixed_family").Inc()
			s.log.Warnw("dropping sample", "metric", sample.Name, zap.Error(ErrMixedFamily))
			continue
		}
		keys[key] = struct{}{}
		seen[sample.Name] = keys

		fam, ok := s.families[sample.Name]
		if !ok {
			s.log.Debugw("new metric has appeared, adding", "metric", sample.Name, "type", sample.Type)
			fam = newFamily(sample.Name, sample.Type)
			s.families[sample.Name] = fam
		}
		fam.Type = sample.Type
		fam.LastSeen = ts

		if inst, ok := fam.Instances[key]; ok {
			inst.Apply(sample.Value, ts, interval)
			inst.pos = pos
			continue
		}
		fam.Instances[key] = &Instance{
			Key:      key,
			Labels:   sample.LabelMap(),
			Value:    sample.Value,
			LastSeen: ts,
			pos:      pos,
		}
	}

	res := Result{Timestamp: ts}
	for name, fam := range s.families {
		keys, ok := seen[name]
		if !ok {
			s.log.Debugw("removing metric", "metric", name)
			delete(s.families, name)
			res.PrunedFamilies++
			continue
		}
		for k := range fam.Instances {
			if _, ok := keys[k]; !ok {
				delete(fam.Instances, k)
				res.PrunedInstances++
			}
		}
		res.Instances += fam.Len()
	}
	res.Families = len(s.families)
	s.lastTimestamp = ts

	PrunedCnt.WithLabelValues("family").Add(float64(res.PrunedFamilies))
	PrunedCnt.WithLabelValues("instance").Add(float64(res.PrunedInstances))
	FamiliesTotal.Set(float64(res.Families))
	InstancesTotal.Set(float64(res.Instances))

	return res
}

// mixesShapes reports whether adding key to the keys seen this cycle would
// put a singleton next to labeled instances.
func mixesShapes(keys map[LabelSetKey]struct{}, key LabelSetKey) bool {
	if len(keys) == 0 {
		return false
	}
	_, hasSingleton := keys[SingletonKey]
	if key == SingletonKey {
		return !hasSingleton
	}

	return hasSingleton
}

func (s *Store) publish(ts int64) {
	s.snap.Store(snapshotOf(ts, s.families))
}
