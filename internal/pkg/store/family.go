package store

import (
	"sort"

	"cmon/pkg/models"
)

// Instance is the latest observation of one series.
type Instance struct {
	Key      LabelSetKey
	Labels   map[string]string
	Value    float64
	Delta    float64
	LastSeen int64

	// position of the series in the most recent payload
	pos int
}

// Apply records a new observation. Delta is the change since the previous
// observation divided by the configured scrape interval in seconds, not the
// measured elapsed time.
func (i *Instance) Apply(value float64, ts int64, scrapeInterval float64) {
	i.Delta = (value - i.Value) / scrapeInterval
	i.Value = value
	i.LastSeen = ts
}

// Label returns the value of label k, or "" if absent.
func (i *Instance) Label(k string) string {
	return i.Labels[k]
}

func (i *Instance) clone() *Instance {
	c := *i
	c.Labels = make(map[string]string, len(i.Labels))
	for k, v := range i.Labels {
		c.Labels[k] = v
	}

	return &c
}

// Family holds all series of one metric name.
type Family struct {
	Name      string
	Type      models.MetricType
	Instances map[LabelSetKey]*Instance
	LastSeen  int64
}

func newFamily(name string, mtype models.MetricType) *Family {
	return &Family{
		Name:      name,
		Type:      mtype,
		Instances: make(map[LabelSetKey]*Instance),
	}
}

// Len returns the number of instances.
func (f *Family) Len() int {
	return len(f.Instances)
}

// Sorted returns the instances in the order they appeared in the most
// recent payload.
func (f *Family) Sorted() []*Instance {
	out := make([]*Instance, 0, len(f.Instances))
	for _, i := range f.Instances {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].pos < out[b].pos })

	return out
}

// Singleton returns the value of an unlabeled family.
func (f *Family) Singleton() (float64, bool) {
	i, ok := f.Instances[SingletonKey]
	if !ok {
		return 0, false
	}

	return i.Value, true
}

// Sum adds up Value across instances.
func (f *Family) Sum() float64 {
	var total float64
	for _, i := range f.Instances {
		total += i.Value
	}

	return total
}

// SumDelta adds up Delta across instances.
func (f *Family) SumDelta() float64 {
	var total float64
	for _, i := range f.Instances {
		total += i.Delta
	}

	return total
}

func (f *Family) clone() *Family {
	c := &Family{
		Name:      f.Name,
		Type:      f.Type,
		Instances: make(map[LabelSetKey]*Instance, len(f.Instances)),
		LastSeen:  f.LastSeen,
	}
	for k, i := range f.Instances {
		c.Instances[k] = i.clone()
	}

	return c
}
