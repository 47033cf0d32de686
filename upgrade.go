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

package slogboot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogboot/sink"
)

// Directives are logging settings read from structured configuration.
type Directives struct {
	// MinimumLevel replaces the global minimum when set.
	MinimumLevel *Level
	// Overrides are applied after the built-in host override.
	Overrides []LevelOverride
	// Sinks are opened in addition to the resolved ones.
	Sinks []sink.Config
	// Properties are bound to every event.
	Properties []slog.Attr
}

// ConfigurationSource yields logging directives. Its schema is its own.
type ConfigurationSource interface {
	LoggingDirectives() (Directives, error)
}

// UpgradeInput carries what the host knows once it is configured.
type UpgradeInput struct {
	// EnvironmentName is the authoritative environment. When empty the
	// bootstrap value is kept.
	EnvironmentName string
	// Config supplies additional directives. May be nil.
	Config ConfigurationSource
	// TracerProvider is the live telemetry client. May be nil.
	TracerProvider trace.TracerProvider
	// Properties are host-detected attributes, such as the runtime platform,
	// bound to every event.
	Properties []slog.Attr
}

// Upgrade builds the steady-state logger and atomically replaces the active
// one. The previous logger is drained and closed after the swap.
//
// Sinks are resolved again with the authoritative environment name. A live
// TracerProvider binds the telemetry sink to the span active at emission,
// which a bare instrumentation key cannot. Host framework sources are held
// at Warning. Directives from Config are applied after those built-in
// settings, so configuration wins on conflicts.
func (p *Pipeline) Upgrade(ctx context.Context, in UpgradeInput) (*Logger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPipelineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	envName := strings.TrimSpace(in.EnvironmentName)
	if envName == "" {
		envName = p.inputs.EnvironmentName
	}

	res := ResolveSinks(p.inputs.sinkInputs(envName))
	sinks := res.Sinks
	switch {
	case in.TracerProvider != nil:
		sinks = append(sinks, sink.Telemetry{
			InstrumentationKey: p.inputs.InstrumentationKey,
			TracerProvider:     in.TracerProvider,
		})
	case p.inputs.InstrumentationKey != "":
		sinks = append(sinks, sink.Telemetry{InstrumentationKey: p.inputs.InstrumentationKey})
	}

	minimum := LevelVerbose
	overrides := []LevelOverride{{Source: HostSource, Level: LevelWarning}}
	enrichment := p.inputs.enrichment()
	enrichment.Properties = append(enrichment.Properties, in.Properties...)

	if in.Config != nil {
		d, err := in.Config.LoggingDirectives()
		if err != nil {
			return nil, fmt.Errorf("upgrade: read logging directives: %w", err)
		}
		if d.MinimumLevel != nil {
			minimum = *d.MinimumLevel
		}
		overrides = append(overrides, d.Overrides...)
		sinks = append(sinks, d.Sinks...)
		enrichment.Properties = append(enrichment.Properties, d.Properties...)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}

	logger, err := Build(BuildOptions{
		Sinks:        sinks,
		Enrichment:   enrichment,
		MinimumLevel: minimum,
		Overrides:    overrides,
		Open:         p.opts.open,
		Env:          p.opts.sinkEnv(p.inputs),
		FlushTimeout: p.inputs.FlushTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}

	p.replace(logger)
	p.upgraded = true
	return logger, nil
}
