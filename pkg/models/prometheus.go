package models

import "strings"

// Sample is a single series observation read from an exposition payload.
// Samples are produced fresh on every scrape and are not retained past
// ingestion.
type Sample struct {
	Name      string
	Type      MetricType
	Labels    []Label
	Value     float64
	Timestamp int64
}

// Label is a key-value pair from the curly brackets of a sample line.
type Label struct {
	Key, Value string
}

// LabelMap returns the sample labels as a map.
func (s Sample) LabelMap() map[string]string {
	m := make(map[string]string, len(s.Labels))
	for _, l := range s.Labels {
		m[l.Key] = l.Value
	}

	return m
}

// HashLineType is used for categorizing lines starting with "#".
type HashLineType int

const (
	Comment HashLineType = iota
	Help
	Type
)

// MetricType is the type declared for a metric family by a TYPE line.
type MetricType int

const (
	Unknown MetricType = iota
	Gauge
	Counter
	Histogram
	Summary
	Untyped
)

// MetricMap maps TYPE line tokens to a MetricType.
var MetricMap = map[string]MetricType{
	"counter":   Counter,
	"gauge":     Gauge,
	"histogram": Histogram,
	"summary":   Summary,
	"untyped":   Untyped,
}

// ParseMetricType returns Unknown for anything not in MetricMap.
func ParseMetricType(s string) MetricType {
	return MetricMap[strings.ToLower(strings.TrimSpace(s))]
}

func (m MetricType) String() string {
	switch m {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	case Histogram:
		return "histogram"
	case Summary:
		return "summary"
	case Untyped:
		return "untyped"
	default:
		return "unknown"
	}
}
