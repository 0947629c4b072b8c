// Package promapi reads range data and alerts from a Prometheus server
// scraping the same cluster.
package promapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable the server could not be reached or did not answer with success.
	ErrUnavailable = errors.New("prometheus unavailable")

	// ErrBadResponse the response body could not be decoded.
	ErrBadResponse = errors.New("unexpected prometheus response")
)

const (
	defaultTimeout       = 5 * time.Second
	defaultMaxTries      = 3
	defaultRetryInterval = 250 * time.Millisecond
)

// ClientConf Client configuration struct.
type ClientConf struct {
	// URL base URL of the server, without the /api/v1 suffix.
	URL string

	// Timeout per request.
	Timeout time.Duration

	// MaxTries attempts per call, including the first.
	MaxTries int

	// RetryInterval initial backoff between attempts.
	RetryInterval time.Duration
}

// Client talks to the Prometheus HTTP API.
type Client struct {
	ClientConf

	api promv1.API
	err error
}

// NewClient Client constructor. An unusable URL surfaces as ErrUnavailable
// on every call.
func NewClient(conf ClientConf) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}
	if conf.MaxTries < 1 {
		conf.MaxTries = defaultMaxTries
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = defaultRetryInterval
	}
	conf.URL = strings.TrimSuffix(conf.URL, "/")

	c := &Client{ClientConf: conf}
	client, err := api.NewClient(api.Config{
		Address: conf.URL,
		Client:  &http.Client{Timeout: conf.Timeout},
	})
	if err != nil {
		zap.S().Errorw("invalid prometheus address", "url", conf.URL, zap.Error(err))
		c.err = errors.Wrap(ErrUnavailable, err.Error())
		return c
	}
	c.api = promv1.NewAPI(client)

	return c
}

// Query evaluates an instant query at the given time.
func (c *Client) Query(ctx context.Context, query string, at time.Time) (model.Vector, error) {
	var res model.Value
	err := c.retry(ctx, "query", func() error {
		var (
			warnings promv1.Warnings
			err      error
		)
		res, warnings, err = c.api.Query(ctx, query, at)
		logWarnings(query, warnings)
		return err
	})
	if err != nil {
		return nil, err
	}

	v, ok := res.(model.Vector)
	if !ok {
		return nil, errors.Wrapf(ErrBadResponse, "expected vector result, got %s", valueType(res))
	}

	return v, nil
}

// QueryRange evaluates a query over [start, end] at the given resolution.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (model.Matrix, error) {
	r := promv1.Range{Start: start, End: end, Step: step}

	var res model.Value
	err := c.retry(ctx, "query_range", func() error {
		var (
			warnings promv1.Warnings
			err      error
		)
		res, warnings, err = c.api.QueryRange(ctx, query, r)
		logWarnings(query, warnings)
		return err
	})
	if err != nil {
		return nil, err
	}

	m, ok := res.(model.Matrix)
	if !ok {
		return nil, errors.Wrapf(ErrBadResponse, "expected matrix result, got %s", valueType(res))
	}

	return m, nil
}

// retry runs call until it succeeds, fails permanently or MaxTries is
// reached, backing off exponentially between attempts.
func (c *Client) retry(ctx context.Context, endpoint string, call func() error) error {
	if c.err != nil {
		return c.err
	}

	backof := backoff.NewExponentialBackOff()
	backof.InitialInterval = c.RetryInterval
	backof.MaxElapsedTime = 0

	var lastErr error
	for attempt := 1; attempt <= c.MaxTries; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(ctx, err) || attempt == c.MaxTries {
			break
		}

		nextBo := backof.NextBackOff()
		zap.S().Warnw("prometheus request failed", zap.Error(err),
			"endpoint", endpoint, "attempt", attempt, "retry_timer", nextBo)

		select {
		case <-time.After(nextBo):
		case <-ctx.Done():
			return errors.Wrap(ErrUnavailable, ctx.Err().Error())
		}
	}

	return classify(lastErr)
}

// retryable reports whether err is a transport failure or a server side
// error worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *promv1.Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == promv1.ErrServer || apiErr.Type == promv1.ErrTimeout
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// classify maps a final error onto the package sentinels.
func classify(err error) error {
	var apiErr *promv1.Error
	if errors.As(err, &apiErr) && apiErr.Type == promv1.ErrBadResponse {
		return errors.Wrap(ErrBadResponse, err.Error())
	}

	return errors.Wrap(ErrUnavailable, err.Error())
}

func valueType(v model.Value) string {
	if v == nil {
		return "nothing"
	}

	return v.Type().String()
}

func logWarnings(query string, warnings promv1.Warnings) {
	if len(warnings) > 0 {
		zap.S().Warnw("prometheus query returned warnings", "query", query, "warnings", warnings)
	}
}
