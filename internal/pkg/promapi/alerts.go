package promapi

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/common/model"
)

// Alert is one active or pending alert.
type Alert struct {
	Labels      model.LabelSet `json:"labels"`
	Annotations model.LabelSet `json:"annotations"`
	State       string         `json:"state"`
	ActiveAt    time.Time      `json:"activeAt"`
	Value       string         `json:"value"`
}

// Name returns the alertname label.
func (a Alert) Name() string {
	return string(a.Labels[model.AlertNameLabel])
}

// Severity returns the severity label.
func (a Alert) Severity() string {
	return string(a.Labels["severity"])
}

// Description returns the description annotation.
func (a Alert) Description() string {
	return string(a.Annotations["description"])
}

// Age returns how long the alert has been active at now.
func (a Alert) Age(now time.Time) time.Duration {
	if a.ActiveAt.IsZero() {
		return 0
	}

	return now.Sub(a.ActiveAt).Truncate(time.Second)
}

// Alerts returns the server's alerts ordered by severity then name.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var res []Alert
	err := c.retry(ctx, "alerts", func() error {
		r, err := c.api.Alerts(ctx)
		if err != nil {
			return err
		}

		res = make([]Alert, 0, len(r.Alerts))
		for _, a := range r.Alerts {
			res = append(res, Alert{
				Labels:      a.Labels,
				Annotations: a.Annotations,
				State:       string(a.State),
				ActiveAt:    a.ActiveAt,
				Value:       a.Value,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Severity() != res[j].Severity() {
			return res[i].Severity() < res[j].Severity()
		}
		return res[i].Name() < res[j].Name()
	})

	return res, nil
}
