package store

import "sort"

// Snapshot is an immutable view of the store taken at the end of a
// successful cycle. Derived views only ever read snapshots.
type Snapshot struct {
	Timestamp int64
	families  map[string]*Family
}

// NewSnapshot builds a snapshot from families, mainly for tests and
// consumers that assemble data by hand.
func NewSnapshot(ts int64, families ...*Family) *Snapshot {
	s := &Snapshot{Timestamp: ts, families: make(map[string]*Family, len(families))}
	for _, f := range families {
		s.families[f.Name] = f
	}

	return s
}

// Family returns the named family.
func (s *Snapshot) Family(name string) (*Family, bool) {
	f, ok := s.families[name]
	return f, ok
}

// Instances returns the instances of the named family in payload order,
// or nil when the family is absent.
func (s *Snapshot) Instances(name string) []*Instance {
	f, ok := s.families[name]
	if !ok {
		return nil
	}

	return f.Sorted()
}

// Names returns the family names in lexical order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.families))
	for name := range s.families {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of families.
func (s *Snapshot) Len() int {
	return len(s.families)
}

// InstanceCount returns the number of instances across all families.
func (s *Snapshot) InstanceCount() int {
	n := 0
	for _, f := range s.families {
		n += f.Len()
	}

	return n
}

func snapshotOf(ts int64, families map[string]*Family) *Snapshot {
	s := &Snapshot{Timestamp: ts, families: make(map[string]*Family, len(families))}
	for name, f := range families {
		s.families[name] = f.clone()
	}

	return s
}
