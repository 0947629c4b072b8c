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

package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable no data could be retrieved this cycle, whatever the cause.
	ErrUnavailable = errors.New("exporter data unavailable")

	// ErrInvalidEndpoint the endpoint URL cannot be used.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

const defaultTimeout = 5 * time.Second

// ClientConf Client configuration struct.
type ClientConf struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string

	// Now overrides the clock used for payload timestamps (tests only).
	Now func() time.Time
}

// Payload is one retrieved exposition body.
type Payload struct {
	Timestamp int64
	Body      []byte
}

// Client performs single blocking GETs against the exporter.
type Client struct {
	ClientConf

	client *http.Client
	log    *zap.SugaredLogger
}

// NewClient Client constructor.
func NewClient(conf ClientConf) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}

	return &Client{
		ClientConf: conf,
		client:     &http.Client{},
		log:        zap.S().With("url", conf.URL),
	}
}

// Fetch retrieves the exporter payload. Every failure, network or HTTP
// status, is returned wrapping ErrUnavailable. There are no retries.
func (c *Client) Fetch(ctx context.Context) (Payload, error) {
	p := Payload{Timestamp: c.Now().Unix()}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		c.log.Errorw("invalid http request", zap.Error(err))
		return p, errors.Wrap(ErrUnavailable, err.Error())
	}
	for k, v := range c.Headers {
		req.Header.Add(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Errorw("http request failed", zap.Error(err))
		return p, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Errorw("http request failed", "status_code", resp.StatusCode)
		return p, errors.Wrapf(ErrUnavailable, "status code %d", resp.StatusCode)
	}

	p.Body, err = io.ReadAll(resp.Body)
	if err != nil {
		c.log.Errorw("failed to read exporter body", zap.Error(err))
		return p, errors.Wrap(ErrUnavailable, err.Error())
	}
	if len(p.Body) == 0 {
		// standby mgrs answer 200 with nothing to scrape
		c.log.Warnw("exporter returned an empty body")
		return p, errors.Wrap(ErrUnavailable, "empty body")
	}
	c.log.Debugw("http request successful", "bytes", len(p.Body))

	return p, nil
}

// ValidateEndpoint checks that rawURL has a hostname and an explicit port
// and that the hostname resolves.
func ValidateEndpoint(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(ErrInvalidEndpoint, err.Error())
	}
	if u.Hostname() == "" {
		return errors.Wrap(ErrInvalidEndpoint, "hostname missing")
	}
	if u.Port() == "" {
		return errors.Wrap(ErrInvalidEndpoint, "http port missing")
	}

	if _, err := net.DefaultResolver.LookupHost(ctx, u.Hostname()); err != nil {
		return errors.Wrap(ErrInvalidEndpoint, "invalid hostname, DNS lookup failed")
	}

	return nil
}
