package merge

import (
	"fmt"
	"strings"

	"cmon/internal/pkg/store"

	"go.uber.org/multierr"
)

const (
	// FieldValue selects an instance's current value.
	FieldValue = "value"

	// FieldDelta selects an instance's per-interval delta.
	FieldDelta = "delta"
)

// Record is one entity being assembled from several families. Labels hold
// identity and descriptive attributes, Fields hold numbers copied in by a
// merge. The two never share a namespace.
type Record struct {
	Labels map[string]string
	Fields map[string]float64
}

// NewRecord returns a record with initialized maps.
func NewRecord(labels map[string]string) Record {
	if labels == nil {
		labels = map[string]string{}
	}

	return Record{Labels: labels, Fields: map[string]float64{}}
}

// Float returns field name, or 0 when it is absent.
func (r Record) Float(name string) float64 {
	return r.Fields[name]
}

// Has reports whether field name is set.
func (r Record) Has(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// Label returns label name, or "" when it is absent.
func (r Record) Label(name string) string {
	return r.Labels[name]
}

// source returns the value a merge copies out of r.
func (r Record) source(name string) (float64, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// FromInstances converts store instances into records carrying both the
// value and delta fields.
func FromInstances(instances []*store.Instance) []Record {
	out := make([]Record, 0, len(instances))
	for _, i := range instances {
		labels := make(map[string]string, len(i.Labels))
		for k, v := range i.Labels {
			labels[k] = v
		}
		r := NewRecord(labels)
		r.Fields[FieldValue] = i.Value
		r.Fields[FieldDelta] = i.Delta
		out = append(out, r)
	}

	return out
}

// FromFamily converts the named family of a snapshot into records.
// A missing family yields no records.
func FromFamily(s *store.Snapshot, name string) []Record {
	return FromInstances(s.Instances(name))
}

// Update is one list of records to merge into a base list. Source is
// copied into the base record as Target.
type Update struct {
	Records []Record
	Source  string
	Target  string
}

// FamilyUpdate builds an Update from a snapshot family.
func FamilyUpdate(s *store.Snapshot, name, source, target string) Update {
	return Update{Records: FromFamily(s, name), Source: source, Target: target}
}

func keysMatch(a, b Record, keys []string) bool {
	for _, k := range keys {
		av, aok := a.Labels[k]
		bv, bok := b.Labels[k]
		if !aok || !bok || av != bv {
			return false
		}
	}

	return true
}

// Merge copies, for every base record and every update, the Source field
// of the first update record whose key labels all equal the base record's
// into the base record's Target field. Unmatched base records are left
// without the target field and unmatched update records are discarded.
// base is modified in place and returned.
//
// Cost is O(len(base) * total update records); use an Index for
// image-level cardinalities.
func Merge(base []Record, updates []Update, keys ...string) []Record {
	for _, b := range base {
		for _, u := range updates {
			for _, candidate := range u.Records {
				if !keysMatch(b, candidate, keys) {
					continue
				}
				if v, ok := candidate.source(u.Source); ok {
					b.Fields[u.Target] = v
				}
				break
			}
		}
	}

	return base
}

// Policy selects what MergeStrict does with base records lacking a match.
type Policy int

const (
	// PolicyPropagate keeps every base record and returns the faults as an error.
	PolicyPropagate Policy = iota

	// PolicySkip drops faulty base records and reports how many were dropped.
	PolicySkip
)

// IntegrityError reports a base record with no matching record in an
// update list where one is expected.
type IntegrityError struct {
	Key    string
	Target string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("no %s entry for %s", e.Target, e.Key)
}

// MergeStrict behaves like Merge but treats a base record without a match
// in any update as a data-integrity fault. With PolicyPropagate the merged
// records are returned with all faults combined into one error. With
// PolicySkip faulty records are removed and the count of skipped records
// is returned with a nil error.
func MergeStrict(base []Record, updates []Update, policy Policy, keys ...string) ([]Record, int, error) {
	return mergeStrict(base, updates, policy, keys, func(b Record, ui int) (Record, bool) {
		for _, candidate := range updates[ui].Records {
			if keysMatch(b, candidate, keys) {
				return candidate, true
			}
		}

		return Record{}, false
	})
}

// MergeIndexedStrict is MergeStrict using one Index per update.
func MergeIndexedStrict(base []Record, updates []Update, policy Policy, keys ...string) ([]Record, int, error) {
	indexes := make([]*Index, len(updates))
	for i, u := range updates {
		indexes[i] = NewIndex(u.Records, keys...)
	}

	return mergeStrict(base, updates, policy, keys, func(b Record, ui int) (Record, bool) {
		return indexes[ui].Lookup(b)
	})
}

func mergeStrict(base []Record, updates []Update, policy Policy, keys []string,
	find func(b Record, update int) (Record, bool)) ([]Record, int, error) {

	var (
		errs    error
		skipped int
		out     = base[:0]
	)

	for _, b := range base {
		faulty := false
		for ui, u := range updates {
			candidate, ok := find(b, ui)
			if !ok {
				faulty = true
				errs = multierr.Append(errs, &IntegrityError{Key: DisplayKey(b, keys...), Target: u.Target})
				continue
			}
			if v, ok := candidate.source(u.Source); ok {
				b.Fields[u.Target] = v
			}
		}

		if faulty && policy == PolicySkip {
			skipped++
			continue
		}
		out = append(out, b)
	}

	if policy == PolicySkip {
		return out, skipped, nil
	}

	return out, 0, errs
}

// Index maps composite keys to the first record carrying them.
type Index struct {
	keys    []string
	entries map[string]Record
}

// NewIndex indexes records by the given key labels. Records missing any
// key label are not indexed.
func NewIndex(records []Record, keys ...string) *Index {
	idx := &Index{keys: keys, entries: make(map[string]Record, len(records))}
	for _, r := range records {
		if !hasKeys(r, keys) {
			continue
		}
		k := compositeKey(r, keys)
		if _, ok := idx.entries[k]; !ok {
			idx.entries[k] = r
		}
	}

	return idx
}

// Lookup returns the indexed record matching r's key labels.
func (idx *Index) Lookup(r Record) (Record, bool) {
	if !hasKeys(r, idx.keys) {
		return Record{}, false
	}
	m, ok := idx.entries[compositeKey(r, idx.keys)]

	return m, ok
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// MergeIndexed is Merge using one Index per update.
func MergeIndexed(base []Record, updates []Update, keys ...string) []Record {
	for _, u := range updates {
		idx := NewIndex(u.Records, keys...)
		for _, b := range base {
			candidate, ok := idx.Lookup(b)
			if !ok {
				continue
			}
			if v, ok := candidate.source(u.Source); ok {
				b.Fields[u.Target] = v
			}
		}
	}

	return base
}

func hasKeys(r Record, keys []string) bool {
	for _, k := range keys {
		if _, ok := r.Labels[k]; !ok {
			return false
		}
	}

	return true
}

// keySep cannot occur in valid UTF-8 label values.
const keySep = "\xff"

// compositeKey joins key label values into an index key.
func compositeKey(r Record, keys []string) string {
	return joinKey(r, keys, keySep)
}

// DisplayKey renders key label values for messages, e.g. pool|namespace|image.
func DisplayKey(r Record, keys ...string) string {
	return joinKey(r, keys, "|")
}

func joinKey(r Record, keys []string, sep string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = r.Labels[k]
	}

	return strings.Join(parts, sep)
}

// Relabel renames field old to new on every record that has it.
func Relabel(records []Record, old, new string) []Record {
	for _, r := range records {
		v, ok := r.Fields[old]
		if !ok {
			continue
		}
		delete(r.Fields, old)
		r.Fields[new] = v
	}

	return records
}
