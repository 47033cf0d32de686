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
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// AttrEnricher appends request properties bound for the whole request.
type AttrEnricher func(*http.Request) []slog.Attr

// Option configures Middleware and Transport.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	enableOTel      bool
	tracerProvider  trace.TracerProvider
	propagators     propagation.TextMapPropagator
	publicEndpoint  bool
	routeGetter     func(*http.Request) string
	requestIDHeader string
	includeQuery    bool
	attrEnrichers   []AttrEnricher
}

func defaultConfig() *config {
	return &config{
		enableOTel:      true,
		requestIDHeader: DefaultRequestIDHeader,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// base returns the configured logger or the current default.
func (cfg *config) base() *slog.Logger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return slog.Default()
}

// WithLogger sets the logger stored in each request context. When nil,
// slog.Default() is used at request time.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = logger }
}

// WithTracerProvider sets the provider used by otelhttp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) { cfg.tracerProvider = tp }
}

// WithPropagators sets the propagator used by otelhttp. When unset the
// global propagator is used, after slogboot.EnsurePropagation has run.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) { cfg.propagators = p }
}

// WithOTel toggles otelhttp instrumentation. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) { cfg.enableOTel = enabled }
}

// WithPublicEndpoint starts a new trace for every request and links the
// incoming one instead of parenting to it.
func WithPublicEndpoint() Option {
	return func(cfg *config) { cfg.publicEndpoint = true }
}

// WithRouteGetter reports the matched route pattern, read after the handler
// has run.
func WithRouteGetter(fn func(*http.Request) string) Option {
	return func(cfg *config) { cfg.routeGetter = fn }
}

// WithRequestIDHeader changes the header carrying the request ID.
func WithRequestIDHeader(name string) Option {
	return func(cfg *config) {
		if name != "" {
			cfg.requestIDHeader = http.CanonicalHeaderKey(name)
		}
	}
}

// WithQuery includes the raw query string in the request properties.
func WithQuery(enabled bool) Option {
	return func(cfg *config) { cfg.includeQuery = enabled }
}

// WithAttrEnricher adds properties derived from the request.
func WithAttrEnricher(fn AttrEnricher) Option {
	return func(cfg *config) {
		if fn != nil {
			cfg.attrEnrichers = append(cfg.attrEnrichers, fn)
		}
	}
}
