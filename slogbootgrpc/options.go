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

package slogbootgrpc

import (
	"log/slog"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures interceptors and the option helpers.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	enableOTel     bool
	tracerProvider trace.TracerProvider
	propagators    propagation.TextMapPropagator
	includePeer    bool
	includeSizes   bool
}

func defaultConfig() *config {
	return &config{
		enableOTel:   true,
		includePeer:  true,
		includeSizes: true,
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

func (cfg *config) base() *slog.Logger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return slog.Default()
}

// WithLogger sets the logger stored in each call context. When nil,
// slog.Default() is used at call time.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = logger }
}

// WithTracerProvider sets the provider used by the otelgrpc stats handlers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) { cfg.tracerProvider = tp }
}

// WithPropagators sets the propagator used by the otelgrpc stats handlers.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) { cfg.propagators = p }
}

// WithOTel toggles the otelgrpc stats handlers. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) { cfg.enableOTel = enabled }
}

// WithPeer toggles the peer address property. Enabled by default.
func WithPeer(enabled bool) Option {
	return func(cfg *config) { cfg.includePeer = enabled }
}

// WithSizes toggles protobuf message size reporting. Enabled by default.
func WithSizes(enabled bool) Option {
	return func(cfg *config) { cfg.includeSizes = enabled }
}
