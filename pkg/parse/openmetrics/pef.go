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

package openmetrics

import (
	"io"
	"sort"

	"cmon/pkg/models"
	"cmon/pkg/parse"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ParsePEF accepts raw data in Prometheus Exposition Format.
// 'filter' is used to match only a select subset of metrics.
// Unlike parse.ParseExposition, any syntax error fails the whole payload.
func ParsePEF(r io.Reader, filter parse.KeyMatcher) ([]*dto.MetricFamily, error) {
	parser := expfmt.TextParser{}
	metrics, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		if filter == nil || filter.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	f := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		f = append(f, metrics[name])
	}

	return f, nil
}

var typeMap = map[dto.MetricType]models.MetricType{
	dto.MetricType_COUNTER:   models.Counter,
	dto.MetricType_GAUGE:     models.Gauge,
	dto.MetricType_SUMMARY:   models.Summary,
	dto.MetricType_UNTYPED:   models.Untyped,
	dto.MetricType_HISTOGRAM: models.Histogram,
}

// ToSamples flattens decoded families into samples stamped with ts.
// Summaries and histograms contribute their _sum and _count series only.
func ToSamples(families []*dto.MetricFamily, ts int64) []models.Sample {
	samples := []models.Sample{}

	for _, family := range families {
		mtype := typeMap[family.GetType()]
		name := family.GetName()

		for _, metric := range family.GetMetric() {
			labels := make([]models.Label, 0, len(metric.GetLabel()))
			for _, l := range metric.GetLabel() {
				labels = append(labels, models.Label{Key: l.GetName(), Value: l.GetValue()})
			}

			add := func(n string, v float64) {
				samples = append(samples, models.Sample{
					Name: n, Type: mtype, Labels: labels, Value: v, Timestamp: ts,
				})
			}

			switch family.GetType() {
			case dto.MetricType_COUNTER:
				add(name, metric.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				add(name, metric.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				add(name, metric.GetUntyped().GetValue())
			case dto.MetricType_SUMMARY:
				add(name+"_sum", metric.GetSummary().GetSampleSum())
				add(name+"_count", float64(metric.GetSummary().GetSampleCount()))
			case dto.MetricType_HISTOGRAM:
				add(name+"_sum", metric.GetHistogram().GetSampleSum())
				add(name+"_count", float64(metric.GetHistogram().GetSampleCount()))
			}
		}
	}

	return samples
}
