// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogboothttp

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport returns an http.RoundTripper that forwards the request ID found
// in the request context and, unless disabled with WithOTel(false), injects
// trace context through otelhttp.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := applyOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.enableOTel {
		var otelOpts []otelhttp.Option
		if cfg.tracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
		}
		if cfg.propagators != nil {
			otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
		}
		base = otelhttp.NewTransport(base, otelOpts...)
	}
	return roundTripper{base: base, header: cfg.requestIDHeader}
}

type roundTripper struct {
	base   http.RoundTripper
	header string
}

// RoundTrip copies the request ID header onto a clone of req.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("round trip: nil request")
	}
	if id, ok := RequestIDFromContext(req.Context()); ok && req.Header.Get(t.header) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(t.header, id)
	}
	return t.base.RoundTrip(req)
}
