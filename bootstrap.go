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
	"fmt"
	"log/slog"
	"sync"

	"github.com/pjscruggs/slogboot/sink"
)

// Pipeline owns the process-wide logger from Bootstrap until CloseAndFlush.
type Pipeline struct {
	opts   options
	inputs Inputs

	mu       sync.Mutex
	upgraded bool
	closed   bool
}

// Bootstrap builds the first logger from environment values only and
// installs it as the process-wide logger. It is meant to run first thing in
// main, before configuration files or services exist.
//
// The logger writes to the console, the rolling file and, when configured or
// in Development, the remote log server, plus a telemetry sink keyed by
// TELEMETRY_INSTRUMENTATION_KEY when set. Every level is enabled except host
// framework sources, which are held at Information.
//
// Bootstrap prints "<application> - <version>" and the remote sink
// announcement to stdout. It fails only on malformed configuration.
func Bootstrap(env EnvironmentReader, opts ...Option) (*Pipeline, error) {
	o := applyOptions(opts)
	in, err := readInputs(env, o)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	res := ResolveSinks(in.sinkInputs(in.EnvironmentName))
	sinks := res.Sinks
	if in.InstrumentationKey != "" {
		sinks = append(sinks, sink.Telemetry{InstrumentationKey: in.InstrumentationKey})
	}

	logger, err := Build(BuildOptions{
		Sinks:        sinks,
		Enrichment:   in.enrichment(),
		MinimumLevel: LevelVerbose,
		Overrides:    []LevelOverride{{Source: HostSource, Level: LevelInformation}},
		Open:         o.open,
		Env:          o.sinkEnv(in),
		FlushTimeout: in.FlushTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	fmt.Fprintf(o.stdout, "%s - %s\n", in.ApplicationName, in.Version)
	fmt.Fprintln(o.stdout, res.Announcement())

	p := &Pipeline{opts: o, inputs: in}
	p.replace(logger)
	if o.install {
		o.registry.Install()
	}
	return p, nil
}

// sinkEnv returns the collaborators handed to every sink.
func (o options) sinkEnv(in Inputs) sink.Env {
	return sink.Env{
		LevelName:    LevelName,
		Stdout:       o.stdout,
		ErrorWriter:  o.stderr,
		FlushTimeout: in.FlushTimeout,
	}
}

// replace swaps next into the registry and drains the previous logger.
func (p *Pipeline) replace(next *Logger) {
	prev := p.opts.registry.Swap(next)
	if err := prev.Close(); err != nil {
		fmt.Fprintf(p.opts.stderr, "[slogboot] WARNING: draining previous logger: %v\n", err)
	}
}

// Inputs returns the values Bootstrap resolved.
func (p *Pipeline) Inputs() Inputs { return p.inputs }

// Registry returns the registry the pipeline installs into.
func (p *Pipeline) Registry() *Registry { return p.opts.registry }

// Current returns the active Logger.
func (p *Pipeline) Current() *Logger { return p.opts.registry.Current() }

// Logger returns a logger that always writes through the active Logger.
func (p *Pipeline) Logger() *slog.Logger { return p.opts.registry.Logger() }

// Upgraded reports whether Upgrade has completed at least once.
func (p *Pipeline) Upgraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upgraded
}

// CloseAndFlush replaces the active logger with a stderr fallback and closes
// it, waiting for queued events up to the flush timeout. Later calls are
// no-ops.
func (p *Pipeline) CloseAndFlush() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	prev := p.opts.registry.Swap(nil)
	if err := prev.Close(); err != nil {
		return fmt.Errorf("close and flush: %w", err)
	}
	return nil
}
