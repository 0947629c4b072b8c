package parse

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cmon/pkg/models"

	"go.uber.org/zap"
)

// Prometheus exposition format:
// https://github.com/prometheus/docs/blob/main/content/docs/instrumenting/exposition_formats.md
//
// Only the subset emitted by the ceph mgr/prometheus module is understood.
// TYPE association is positional: a TYPE line applies to every following
// sample until the next TYPE line, whatever the sample's name. A feed that
// separates or reorders TYPE lines from their samples will be misclassified.

var (
	errInvalid     = errors.New("invalid syntax")
	errNoValue     = errors.New("missing sample value")
	errNoLabelEnd  = errors.New("found '{', but no '}'")
	errLabelSyntax = errors.New("malformed label")
)

// KeyMatcher selects the metric names a parser keeps.
type KeyMatcher interface {
	Match(name string) bool
}

// PrefixFilter matches metric names starting with any of Prefixes.
type PrefixFilter struct {
	Prefixes []string
}

// CephFilter keeps the ceph metric namespace only.
var CephFilter = &PrefixFilter{Prefixes: []string{"ceph_"}}

// Match checks metricName against the configured prefixes.
func (p *PrefixFilter) Match(metricName string) bool {
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(metricName, prefix) {
			return true
		}
	}

	return false
}

// parserState carries what a TYPE line declared to the samples after it.
type parserState struct {
	declaredType models.MetricType
}

// ParseExposition converts a raw exposition payload into samples stamped
// with ts. Lines that cannot be parsed are skipped; the number skipped is
// logged once per call.
func ParseExposition(data []byte, ts int64, filter KeyMatcher) []models.Sample {
	var (
		state     parserState
		samples   []models.Sample
		malformed int
		firstErr  error
	)

	lines := bytes.Split(data, []byte{'\n'})
	for i, line := range lines {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if line[0] == '#' {
			if hashLineType(line) == models.Type {
				fields := strings.Fields(string(line))
				state.declaredType = models.ParseMetricType(fields[len(fields)-1])
			}
			continue
		}

		name := sampleName(line)
		if filter != nil && !filter.Match(name) {
			continue
		}

		s, err := parseSample(line, name)
		if err != nil {
			malformed++
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: line %d: %v", errInvalid, i+1, err)
			}
			continue
		}
		s.Type = state.declaredType
		s.Timestamp = ts
		samples = append(samples, s)
	}

	if malformed > 0 {
		MalformedSamplesCnt.Add(float64(malformed))
		zap.S().Warnw("skipped malformed samples", "count", malformed, zap.Error(firstErr))
	}

	return samples
}

// sampleName is the text before the first '{', or before the first space
// when there are no labels.
func sampleName(line []byte) string {
	if i := bytes.IndexByte(line, '{'); i >= 0 {
		return string(line[:i])
	}
	if i := bytes.IndexAny(line, " \t"); i >= 0 {
		return string(line[:i])
	}

	return string(line)
}

func parseSample(line []byte, name string) (models.Sample, error) {
	s := models.Sample{Name: name}
	rest := line[len(name):]

	if len(rest) > 0 && rest[0] == '{' {
		labelEnd := bytes.LastIndexByte(rest, '}')
		if labelEnd < 0 {
			return s, errNoLabelEnd
		}
		labels, err := parseLabels(rest[1:labelEnd])
		if err != nil {
			return s, err
		}
		s.Labels = labels
		rest = rest[labelEnd+1:]
	}

	// value is the token after the final whitespace
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return s, errNoValue
	}
	v, err := strconv.ParseFloat(string(fields[len(fields)-1]), 64)
	if err != nil {
		return s, fmt.Errorf("failed to parse value '%s' into float", fields[len(fields)-1])
	}
	s.Value = v

	return s, nil
}

// parseLabels tokenizes `k1="v1",k2="v2"` keeping payload order. Escaped
// quotes, backslashes and newlines inside values are decoded.
func parseLabels(data []byte) ([]models.Label, error) {
	var labels []models.Label

	for {
		data = bytes.TrimLeft(data, ", \t")
		if len(data) == 0 {
			return labels, nil
		}

		eq := bytes.IndexByte(data, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: expected '=' after label name", errLabelSyntax)
		}
		key := string(bytes.TrimSpace(data[:eq]))
		data = data[eq+1:]
		if len(data) == 0 || data[0] != '"' {
			return nil, fmt.Errorf("%w: expected '\"' after '%s='", errLabelSyntax, key)
		}

		value, n, err := readQuoted(data[1:])
		if err != nil {
			return nil, err
		}
		labels = append(labels, models.Label{Key: key, Value: value})
		data = data[1+n:]
	}
}

// readQuoted reads up to and including the closing quote and returns the
// decoded value and the number of bytes consumed.
func readQuoted(data []byte) (string, int, error) {
	var sb strings.Builder
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\\':
			if i+1 >= len(data) {
				return "", 0, fmt.Errorf("%w: dangling escape", errLabelSyntax)
			}
			i++
			switch data[i] {
			case 'n':
				sb.WriteByte('\n')
			default:
				sb.WriteByte(data[i])
			}
		case '"':
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(data[i])
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated label value", errLabelSyntax)
}

func hashLineType(data []byte) models.HashLineType {
	if bytes.HasPrefix(data, []byte("# HELP ")) {
		return models.Help
	}

	if bytes.HasPrefix(data, []byte("# TYPE ")) && len(bytes.Fields(data)) >= 4 {
		return models.Type
	}

	return models.Comment
}
