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

// Package slogboot brings a structured [log/slog] pipeline online at the very
// start of a process and upgrades it once configuration and services exist,
// without losing events across the swap and with a guaranteed flush on every
// exit path.
//
// # Stages
//
// [Bootstrap] reads only environment variables (SEQ_URL, SEQ_API_KEY,
// TELEMETRY_INSTRUMENTATION_KEY, APP_ENVIRONMENT and the host name), resolves
// the sinks with [ResolveSinks], builds a logger with [Build] and installs it
// as slog.Default through a [Registry]. Host framework sources (see
// [HostSource]) are held at Information.
//
// [Pipeline.Upgrade] runs once the host knows its environment name, its
// structured configuration and its OpenTelemetry tracer provider. It builds
// the steady-state logger, holds host sources at Warning, applies
// configuration directives and swaps the logger atomically. The previous
// logger drains before it is closed.
//
// [Pipeline.CloseAndFlush] drains and closes whatever is active, bounded by
// the flush timeout.
//
// # Sinks
//
// Console and a daily rolling file are always active. A Seq compatible remote
// log server is added when SEQ_URL is set, or at http://localhost:5341 in
// Development. A telemetry sink forwards events to OpenTelemetry. See package
// [github.com/pjscruggs/slogboot/sink].
//
// # Enrichment
//
// Every event carries application, host_name and app_version. Properties
// added to a context with [WithProperties], and the active span's trace_id
// and span_id, are attached to events emitted with that context:
//
//	ctx = slogboot.WithProperties(ctx, slog.String("order_id", id))
//	slog.InfoContext(ctx, "order accepted")
//
// # Quick Start
//
//	pipeline, err := slogboot.Bootstrap(slogboot.OSEnvironment)
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(1)
//	}
//	defer pipeline.CloseAndFlush()
//
//	slog.Info("configuring host")
//	// ... load configuration, create services ...
//	_, err = pipeline.Upgrade(ctx, slogboot.UpgradeInput{
//	    EnvironmentName: cfg.Environment,
//	    Config:          cfg,
//	    TracerProvider:  tp,
//	})
//
// Package [github.com/pjscruggs/slogboot/supervisor] wraps this sequence with
// lifecycle milestones, Fatal logging of unhandled failures and exit codes.
package slogboot
