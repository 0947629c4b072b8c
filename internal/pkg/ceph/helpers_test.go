package ceph

import (
	"testing"

	"cmon/internal/pkg/store"
	"cmon/pkg/models"

	"github.com/stretchr/testify/require"
)

type series struct {
	labels map[string]string
	value  float64
	delta  float64
}

func sv(value float64, kv ...string) series {
	return sd(value, 0, kv...)
}

func sd(value, delta float64, kv ...string) series {
	labels := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}

	return series{labels: labels, value: value, delta: delta}
}

func newFamily(t *testing.T, name string, ss ...series) *store.Family {
	t.Helper()

	f := &store.Family{Name: name, Type: models.Gauge, Instances: map[store.LabelSetKey]*store.Instance{}}
	for _, s := range ss {
		var labels []models.Label
		for k, v := range s.labels {
			labels = append(labels, models.Label{Key: k, Value: v})
		}
		key := store.KeyFor(labels)
		_, dup := f.Instances[key]
		require.False(t, dup, "duplicate series in %s", name)
		f.Instances[key] = &store.Instance{Key: key, Labels: s.labels, Value: s.value, Delta: s.delta}
	}

	return f
}

func snapshot(families ...*store.Family) *store.Snapshot {
	return store.NewSnapshot(1700000000, families...)
}
