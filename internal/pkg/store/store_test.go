package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cmon/internal/pkg/fetch"
	"cmon/pkg/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testURL = "http://localhost:9283/metrics"

// mockFetcher replays payloads in order; an empty string is a failed fetch.
type mockFetcher struct {
	payloads []string
	ts       int64
	*sync.Mutex
}

func newMockFetcher(payloads ...string) *mockFetcher {
	return &mockFetcher{payloads: payloads, ts: 1000, Mutex: &sync.Mutex{}}
}

func (m *mockFetcher) push(payloads ...string) {
	m.Lock()
	defer m.Unlock()
	m.payloads = append(m.payloads, payloads...)
}

func (m *mockFetcher) Fetch(ctx context.Context) (fetch.Payload, error) {
	m.Lock()
	defer m.Unlock()

	m.ts += 15
	p := fetch.Payload{Timestamp: m.ts}
	if len(m.payloads) == 0 {
		return p, fetch.ErrUnavailable
	}
	body := m.payloads[0]
	m.payloads = m.payloads[1:]
	if body == "" {
		return p, fetch.ErrUnavailable
	}
	p.Body = []byte(body)

	return p, nil
}

func newTestStore(t *testing.T, maxFailures int, payloads ...string) (*Store, *mockFetcher) {
	f := newMockFetcher(payloads...)
	s := New(Conf{
		URL:            testURL,
		ScrapeInterval: 10 * time.Second,
		MaxFailures:    maxFailures,
		Fetcher:        f,
	})
	require.Equal(t, StateUninitialized, s.State())

	return s, f
}

const (
	payloadA = `# TYPE ceph_pool_rd counter
ceph_pool_rd{pool_id="1"} 100.0
ceph_pool_rd{pool_id="2"} 50.0
# TYPE ceph_health_status untyped
ceph_health_status 0.0
`
	payloadB = `# TYPE ceph_pool_rd counter
ceph_pool_rd{pool_id="1"} 160.0
ceph_pool_rd{pool_id="2"} 50.0
# TYPE ceph_health_status untyped
ceph_health_status 1.0
`
)

func instanceFor(t *testing.T, snap *Snapshot, name string, labels ...models.Label) *Instance {
	f, ok := snap.Family(name)
	require.True(t, ok, "family %s missing", name)
	i, ok := f.Instances[KeyFor(labels)]
	require.True(t, ok, "instance %v of %s missing", labels, name)

	return i
}

func TestStore_BuildDeltaIsZero(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA)
	require.NoError(t, s.Build(context.Background()))
	require.Equal(t, StateBuilt, s.State())

	snap := s.Snapshot()
	require.Equal(t, 2, snap.Len())
	require.Equal(t, 3, snap.InstanceCount())
	for _, name := range snap.Names() {
		for _, i := range snap.Instances(name) {
			require.Zero(t, i.Delta)
		}
	}

	health, ok := snap.Family("ceph_health_status")
	require.True(t, ok)
	v, ok := health.Singleton()
	require.True(t, ok)
	require.Equal(t, 0.0, v)
	require.Equal(t, models.Untyped, health.Type)
}

func TestStore_UpdateDelta(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA, payloadB)
	require.NoError(t, s.Build(context.Background()))

	res, err := s.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Families)
	require.Equal(t, 3, res.Instances)

	snap := s.Snapshot()
	pool1 := instanceFor(t, snap, "ceph_pool_rd", models.Label{Key: "pool_id", Value: "1"})
	// (160 - 100) / 10s
	require.Equal(t, 6.0, pool1.Delta)
	require.Equal(t, 160.0, pool1.Value)
	require.Equal(t, "1", pool1.Label("pool_id"))

	pool2 := instanceFor(t, snap, "ceph_pool_rd", models.Label{Key: "pool_id", Value: "2"})
	require.Equal(t, 0.0, pool2.Delta)
}

func TestStore_IdenticalPayloadIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA, payloadB, payloadB)
	require.NoError(t, s.Build(context.Background()))
	_, err := s.Update(context.Background())
	require.NoError(t, err)
	before := s.Snapshot()

	res, err := s.Update(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.PrunedFamilies)
	require.Zero(t, res.PrunedInstances)

	after := s.Snapshot()
	require.Equal(t, before.Names(), after.Names())
	for _, name := range after.Names() {
		b, _ := before.Family(name)
		a, _ := after.Family(name)
		require.Equal(t, b.Len(), a.Len())
		for k, i := range a.Instances {
			require.Contains(t, b.Instances, k)
			require.Zero(t, i.Delta)
		}
	}
}

func TestStore_PrunesVanishedSeries(t *testing.T) {
	withoutPool2 := `# TYPE ceph_pool_rd counter
ceph_pool_rd{pool_id="1"} 100.0
`
	s, _ := newTestStore(t, 3, payloadA, withoutPool2, payloadA)
	require.NoError(t, s.Build(context.Background()))

	res, err := s.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PrunedFamilies)
	require.Equal(t, 1, res.PrunedInstances)

	snap := s.Snapshot()
	_, ok := snap.Family("ceph_health_status")
	require.False(t, ok)
	require.Len(t, snap.Instances("ceph_pool_rd"), 1)

	// resent series come back as fresh instances
	_, err = s.Update(context.Background())
	require.NoError(t, err)
	snap = s.Snapshot()
	require.Len(t, snap.Instances("ceph_pool_rd"), 2)
	pool2 := instanceFor(t, snap, "ceph_pool_rd", models.Label{Key: "pool_id", Value: "2"})
	require.Zero(t, pool2.Delta)
}

func TestStore_FailuresAndReset(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA, "", "", payloadB, "", "")
	require.NoError(t, s.Build(context.Background()))
	built := s.Snapshot()

	for i := 1; i <= 2; i++ {
		_, err := s.Update(context.Background())
		require.True(t, errors.Is(err, ErrCycleFailed))
		require.Equal(t, i, s.ConsecutiveFailures())
		require.False(t, s.Scraped())
		// stale-but-available
		require.Same(t, built, s.Snapshot())
	}

	_, err := s.Update(context.Background())
	require.NoError(t, err)
	require.Zero(t, s.ConsecutiveFailures())
	require.True(t, s.Scraped())

	for i := 0; i < 2; i++ {
		_, err := s.Update(context.Background())
		require.True(t, errors.Is(err, ErrCycleFailed))
	}
	require.Equal(t, StateBuilt, s.State())
}

func TestStore_FatalAfterMaxFailures(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA, "", "", "")
	require.NoError(t, s.Build(context.Background()))

	for i := 0; i < 2; i++ {
		_, err := s.Update(context.Background())
		require.True(t, errors.Is(err, ErrCycleFailed))
	}

	_, err := s.Update(context.Background())
	require.True(t, errors.Is(err, ErrFatal))
	require.False(t, errors.Is(err, ErrCycleFailed))
	require.Equal(t, StateTerminated, s.State())

	_, err = s.Update(context.Background())
	require.True(t, errors.Is(err, ErrTerminated))
}

func TestStore_UpdateBeforeBuild(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA)
	_, err := s.Update(context.Background())
	require.True(t, errors.Is(err, ErrNotBuilt))
	require.Zero(t, s.Snapshot().Len())
}

func TestStore_BuildErrors(t *testing.T) {
	s := New(Conf{URL: "http://localhost/metrics", Fetcher: newMockFetcher(payloadA)})
	err := s.Build(context.Background())
	require.True(t, errors.Is(err, ErrInvalidEndpoint))

	s, _ = newTestStore(t, 3, "")
	err = s.Build(context.Background())
	require.True(t, errors.Is(err, ErrNoData))
	require.Equal(t, StateUninitialized, s.State())
}

func TestStore_MixedFamilyRejected(t *testing.T) {
	mixed := `ceph_osd_up 1.0
ceph_osd_up{ceph_daemon="osd.0"} 1.0
`
	s, _ := newTestStore(t, 3, mixed)
	require.NoError(t, s.Build(context.Background()))

	f, ok := s.Snapshot().Family("ceph_osd_up")
	require.True(t, ok)
	require.Equal(t, 1, f.Len())
	_, ok = f.Singleton()
	require.True(t, ok)
}

func TestStore_ShapeChangeAcrossCycles(t *testing.T) {
	s, _ := newTestStore(t, 3, "ceph_osd_up 1.0\n", "ceph_osd_up{ceph_daemon=\"osd.0\"} 1.0\n")
	require.NoError(t, s.Build(context.Background()))
	_, err := s.Update(context.Background())
	require.NoError(t, err)

	f, _ := s.Snapshot().Family("ceph_osd_up")
	require.Equal(t, 1, f.Len())
	_, ok := f.Singleton()
	require.False(t, ok)
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA, payloadB)
	require.NoError(t, s.Build(context.Background()))
	snap := s.Snapshot()

	_, err := s.Update(context.Background())
	require.NoError(t, err)

	pool1 := instanceFor(t, snap, "ceph_pool_rd", models.Label{Key: "pool_id", Value: "1"})
	require.Equal(t, 100.0, pool1.Value)
	require.NotSame(t, snap, s.Snapshot())
}

func TestStore_PayloadOrder(t *testing.T) {
	payload := `ceph_pool_metadata{pool_id="3",name="c"} 1.0
ceph_pool_metadata{pool_id="1",name="a"} 1.0
ceph_pool_metadata{pool_id="2",name="b"} 1.0
`
	s, _ := newTestStore(t, 3, payload)
	require.NoError(t, s.Build(context.Background()))

	var names []string
	for _, i := range s.Snapshot().Instances("ceph_pool_metadata") {
		names = append(names, i.Label("name"))
	}
	require.Equal(t, []string{"c", "a", "b"}, names)
}

func TestStore_StrictDecoderFailsCycle(t *testing.T) {
	f := newMockFetcher(payloadA, "ceph_pool_rd{pool_id=\"1\" 1\n")
	s := New(Conf{URL: testURL, MaxFailures: 3, Fetcher: f, Decoder: DecodeStrict})
	require.NoError(t, s.Build(context.Background()))

	_, err := s.Update(context.Background())
	require.True(t, errors.Is(err, ErrCycleFailed))
}

func TestStore_WithHTTPFetcher(t *testing.T) {
	var mu sync.Mutex
	body := payloadA
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Write([]byte(body))
	}))
	defer ts.Close()

	s := New(Conf{URL: ts.URL, ScrapeInterval: 10 * time.Second, MaxFailures: 2})
	require.NoError(t, s.Build(context.Background()))

	mu.Lock()
	body = payloadB
	mu.Unlock()

	_, err := s.Update(context.Background())
	require.NoError(t, err)
	pool1 := instanceFor(t, s.Snapshot(), "ceph_pool_rd", models.Label{Key: "pool_id", Value: "1"})
	require.Equal(t, 6.0, pool1.Delta)
}

func TestStore_EmptyBodyKeepsState(t *testing.T) {
	var mu sync.Mutex
	body := payloadA
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Write([]byte(body))
	}))
	defer ts.Close()

	s := New(Conf{URL: ts.URL, ScrapeInterval: 10 * time.Second, MaxFailures: 3})
	require.NoError(t, s.Build(context.Background()))
	built := s.Snapshot()
	require.Equal(t, 2, built.Len())

	mu.Lock()
	body = ""
	mu.Unlock()

	_, err := s.Update(context.Background())
	require.True(t, errors.Is(err, ErrCycleFailed))
	require.Equal(t, 1, s.ConsecutiveFailures())
	require.Same(t, built, s.Snapshot())
	require.Equal(t, 2, s.Snapshot().Len())
}

func TestStore_BuildFailsOnEmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\n"))
	}))
	defer ts.Close()

	s := New(Conf{URL: ts.URL, MaxFailures: 3})
	err := s.Build(context.Background())
	require.True(t, errors.Is(err, ErrNoData))
	require.Equal(t, StateUninitialized, s.State())
}

// blockingFetcher holds Fetch until released.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context) (fetch.Payload, error) {
	b.entered <- struct{}{}
	<-b.release

	return fetch.Payload{Timestamp: 2000, Body: []byte(payloadB)}, nil
}

func TestStore_ReadersDoNotWaitOnFetch(t *testing.T) {
	s, _ := newTestStore(t, 3, payloadA)
	require.NoError(t, s.Build(context.Background()))

	bf := &blockingFetcher{entered: make(chan struct{}), release: make(chan struct{})}
	s.Fetcher = bf

	done := make(chan error)
	go func() {
		_, err := s.Update(context.Background())
		done <- err
	}()
	<-bf.entered

	read := make(chan bool)
	go func() {
		read <- s.Scraped()
	}()

	select {
	case scraped := <-read:
		require.True(t, scraped)
	case <-time.After(time.Second):
		t.Fatal("Scraped() waited on an in-flight fetch")
	}
	require.NotNil(t, s.Snapshot())

	close(bf.release)
	require.NoError(t, <-done)
}

func TestKeyFor(t *testing.T) {
	require.Equal(t, SingletonKey, KeyFor(nil))

	ab := KeyFor([]models.Label{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}})
	ba := KeyFor([]models.Label{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}})
	require.Equal(t, ab, ba)
	require.Len(t, string(ab), 2*keySize)

	other := KeyFor([]models.Label{{Key: "a", Value: "12"}})
	require.NotEqual(t, ab, other)

	// separators keep key/value boundaries distinct
	require.NotEqual(t,
		KeyFor([]models.Label{{Key: "ab", Value: "c"}}),
		KeyFor([]models.Label{{Key: "a", Value: "bc"}}))
}

func TestInstance_Apply(t *testing.T) {
	i := &Instance{Value: 10}
	i.Apply(40, 99, 15)
	require.Equal(t, 2.0, i.Delta)
	require.Equal(t, 40.0, i.Value)
	require.Equal(t, int64(99), i.LastSeen)

	i.Apply(25, 100, 15)
	require.Equal(t, -1.0, i.Delta)
}
