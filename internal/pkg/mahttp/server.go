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

package mahttp

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cmon/internal/pkg/global"

	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

// ValidationMiddleware rejects requests whose Host header names a host
// outside runtime.allowed_hosts, unless validation is turned off.
func ValidationMiddleware(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if enabled := global.CmonConf.Runtime.HostHeaderValidationEnabled; enabled != nil && !*enabled {
			next.ServeHTTP(w, r)
			return
		}

		host := hostOf(r.Host)
		if host == "" || !allowed(host, global.CmonConf.Runtime.AllowedHosts) {
			RejectedRequestsCnt.WithLabelValues(r.URL.Path).Inc()
			zap.S().Errorw("got unexpected host header", "host", r.Host, "path", r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

// hostOf strips the port from a Host header. IPv6 literals lose their
// brackets, so "[::1]:9310" yields "::1".
func hostOf(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}

// allowed host names are case insensitive.
func allowed(host string, hosts []string) bool {
	for _, h := range hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}

	return false
}

// StartHTTPServer starts an HTTP server that listens on addr and calls
// wg.Done once it has stopped serving.
func StartHTTPServer(wg *sync.WaitGroup, addr string, mux http.Handler) *http.Server {
	s := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		defer wg.Done()

		zap.S().Infow("serving views and self metrics", "addr", addr)
		if err := s.ListenAndServe(); err != http.ErrServerClosed {
			zap.S().Errorw("ListenAndServe()", zap.Error(err))
		}
	}()

	return s
}
