package merge

import (
	"testing"

	"cmon/internal/pkg/store"
	"cmon/pkg/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func rec(fields map[string]float64, kv ...string) Record {
	labels := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	r := NewRecord(labels)
	for k, v := range fields {
		r.Fields[k] = v
	}

	return r
}

func val(v float64) map[string]float64 {
	return map[string]float64{FieldValue: v}
}

func TestMergeJoinExample(t *testing.T) {
	base := []Record{rec(nil, "pool_id", "1", "name", "rbd")}
	updates := []Update{{
		Records: []Record{rec(val(1000), "pool_id", "1")},
		Source:  FieldValue,
		Target:  "compress_under_bytes",
	}}

	got := Merge(base, updates, "pool_id")
	require.Len(t, got, 1)
	require.Equal(t, map[string]string{"pool_id": "1", "name": "rbd"}, got[0].Labels)
	require.Equal(t, map[string]float64{"compress_under_bytes": 1000}, got[0].Fields)
}

func TestMerge(t *testing.T) {
	base := []Record{
		rec(nil, "pool_id", "1"),
		rec(nil, "pool_id", "2"),
		rec(nil, "name", "no key"),
	}
	updates := []Update{
		{
			Records: []Record{
				rec(val(10), "pool_id", "1"),
				rec(val(11), "pool_id", "1"),
				rec(val(99), "pool_id", "7"),
			},
			Source: FieldValue,
			Target: "rd",
		},
		{
			Records: []Record{rec(val(5), "pool_id", "2")},
			Source:  FieldValue,
			Target:  "wr",
		},
	}

	got := Merge(base, updates, "pool_id")
	require.Len(t, got, 3)

	// first match wins
	require.Equal(t, 10.0, got[0].Float("rd"))
	require.False(t, got[0].Has("wr"))
	require.Equal(t, 0.0, got[0].Float("wr"))

	require.False(t, got[1].Has("rd"))
	require.Equal(t, 5.0, got[1].Float("wr"))

	require.Empty(t, got[2].Fields)
}

func TestMergeCompositeKey(t *testing.T) {
	base := []Record{
		rec(nil, "pool", "rbd", "namespace", "", "image", "vm1"),
		rec(nil, "pool", "rbd", "namespace", "ns", "image", "vm1"),
	}
	updates := []Update{{
		Records: []Record{
			rec(val(1), "pool", "rbd", "namespace", "ns", "image", "vm1"),
			rec(val(2), "pool", "rbd", "namespace", "", "image", "vm1"),
		},
		Source: FieldValue,
		Target: "ops",
	}}

	got := Merge(base, updates, "pool", "namespace", "image")
	require.Equal(t, 2.0, got[0].Float("ops"))
	require.Equal(t, 1.0, got[1].Float("ops"))

	got = MergeIndexed([]Record{
		rec(nil, "pool", "rbd", "namespace", "", "image", "vm1"),
		rec(nil, "pool", "rbd", "namespace", "ns", "image", "vm1"),
	}, updates, "pool", "namespace", "image")
	require.Equal(t, 2.0, got[0].Float("ops"))
	require.Equal(t, 1.0, got[1].Float("ops"))
}

func TestMergeMissingSource(t *testing.T) {
	base := []Record{rec(nil, "pool_id", "1")}
	updates := []Update{{
		Records: []Record{rec(val(1), "pool_id", "1")},
		Source:  FieldDelta,
		Target:  "rd",
	}}

	got := Merge(base, updates, "pool_id")
	require.False(t, got[0].Has("rd"))
}

func strictFixture() ([]Record, []Update) {
	base := []Record{
		rec(nil, "pool_id", "1"),
		rec(nil, "pool_id", "2"),
		rec(nil, "pool_id", "3"),
	}
	updates := []Update{
		{
			Records: []Record{rec(val(1), "pool_id", "1"), rec(val(2), "pool_id", "2")},
			Source:  FieldValue,
			Target:  "stored",
		},
		{
			Records: []Record{rec(val(1), "pool_id", "1"), rec(val(3), "pool_id", "3")},
			Source:  FieldValue,
			Target:  "avail",
		},
	}

	return base, updates
}

func TestMergeStrict(t *testing.T) {
	strict := map[string]func([]Record, []Update, Policy, ...string) ([]Record, int, error){
		"linear":  MergeStrict,
		"indexed": MergeIndexedStrict,
	}

	for name, merge := range strict {
		t.Run(name+" propagate", func(t *testing.T) {
			base, updates := strictFixture()
			got, skipped, err := merge(base, updates, PolicyPropagate, "pool_id")
			require.Error(t, err)
			require.Equal(t, 0, skipped)
			require.Len(t, got, 3)

			errs := multierr.Errors(err)
			require.Len(t, errs, 2)
			require.Equal(t, &IntegrityError{Key: "2", Target: "avail"}, errs[0])
			require.Equal(t, &IntegrityError{Key: "3", Target: "stored"}, errs[1])
			require.Equal(t, "no avail entry for 2", errs[0].Error())

			require.Equal(t, 2.0, got[1].Float("stored"))
			require.Equal(t, 3.0, got[2].Float("avail"))
		})

		t.Run(name+" skip", func(t *testing.T) {
			base, updates := strictFixture()
			got, skipped, err := merge(base, updates, PolicySkip, "pool_id")
			require.NoError(t, err)
			require.Equal(t, 2, skipped)
			require.Len(t, got, 1)
			require.Equal(t, "1", got[0].Label("pool_id"))
			require.Equal(t, 1.0, got[0].Float("stored"))
			require.Equal(t, 1.0, got[0].Float("avail"))
		})

		t.Run(name+" clean", func(t *testing.T) {
			base := []Record{rec(nil, "pool_id", "1")}
			_, updates := strictFixture()
			got, skipped, err := merge(base, updates, PolicyPropagate, "pool_id")
			require.NoError(t, err)
			require.Equal(t, 0, skipped)
			require.Len(t, got, 1)
		})
	}
}

func TestIndex(t *testing.T) {
	records := []Record{
		rec(val(1), "pool", "a", "image", "x"),
		rec(val(2), "pool", "a", "image", "x"),
		rec(val(3), "pool", "a"),
	}
	idx := NewIndex(records, "pool", "image")
	require.Equal(t, 1, idx.Len())

	m, ok := idx.Lookup(rec(nil, "pool", "a", "image", "x"))
	require.True(t, ok)
	require.Equal(t, 1.0, m.Float(FieldValue))

	_, ok = idx.Lookup(rec(nil, "pool", "a"))
	require.False(t, ok)
}

func TestIndex_SeparatorInValues(t *testing.T) {
	records := []Record{
		rec(val(1), "pool", "a|b", "namespace", ""),
		rec(val(2), "pool", "a", "namespace", "b|"),
	}
	idx := NewIndex(records, "pool", "namespace")
	require.Equal(t, 2, idx.Len())

	m, ok := idx.Lookup(rec(nil, "pool", "a", "namespace", "b|"))
	require.True(t, ok)
	require.Equal(t, 2.0, m.Float(FieldValue))

	require.Equal(t, "a|b|", DisplayKey(records[0], "pool", "namespace"))
}

func TestFromFamily(t *testing.T) {
	labels := []models.Label{{Key: "pool_id", Value: "1"}}
	key := store.KeyFor(labels)
	f := &store.Family{Name: "ceph_pool_rd", Instances: map[store.LabelSetKey]*store.Instance{
		key: {Key: key, Labels: map[string]string{"pool_id": "1"}, Value: 30, Delta: 2},
	}}
	s := store.NewSnapshot(1, f)

	got := FromFamily(s, "ceph_pool_rd")
	require.Len(t, got, 1)
	require.Equal(t, 30.0, got[0].Float(FieldValue))
	require.Equal(t, 2.0, got[0].Float(FieldDelta))

	// records own their labels
	got[0].Labels["pool_id"] = "9"
	require.Equal(t, "1", f.Instances[key].Labels["pool_id"])

	require.Empty(t, FromFamily(s, "ceph_missing"))

	u := FamilyUpdate(s, "ceph_pool_rd", FieldDelta, "rd")
	require.Equal(t, "rd", u.Target)
	require.Len(t, u.Records, 1)
}

func TestRelabel(t *testing.T) {
	records := []Record{rec(map[string]float64{FieldDelta: 4}), rec(nil)}
	Relabel(records, FieldDelta, "read_ops")
	require.Equal(t, 4.0, records[0].Float("read_ops"))
	require.False(t, records[0].Has(FieldDelta))
	require.False(t, records[1].Has("read_ops"))
}
