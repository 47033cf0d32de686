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
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	// ApplicationKey carries the application name on every event.
	ApplicationKey = "application"
	// HostNameKey carries the machine name on every event.
	HostNameKey = "host_name"
	// VersionKey carries the application version on every event.
	VersionKey = "app_version"
	// TraceIDKey and SpanIDKey carry the active OpenTelemetry span.
	TraceIDKey = "trace_id"
	SpanIDKey  = "span_id"
)

// Enrichment lists the attributes bound once to every event of a logger.
type Enrichment struct {
	Application string
	HostName    string
	Version     string
	// Properties are additional fixed attributes, typically declared in
	// configuration or detected from the runtime platform.
	Properties []slog.Attr
}

// Attrs returns the eager attributes in a stable order, skipping empty
// values.
func (e Enrichment) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3+len(e.Properties))
	if e.Application != "" {
		attrs = append(attrs, slog.String(ApplicationKey, e.Application))
	}
	if e.HostName != "" {
		attrs = append(attrs, slog.String(HostNameKey, e.HostName))
	}
	if e.Version != "" {
		attrs = append(attrs, slog.String(VersionKey, e.Version))
	}
	for _, a := range e.Properties {
		attrs = append(attrs, resolveAttr(a))
	}
	return attrs
}

// enrichHandler rebuilds each record with resolved attribute values plus the
// properties and span carried by the emitting context, so nothing evaluated
// later on a worker goroutine can observe a different value.
type enrichHandler struct {
	next slog.Handler
}

func (h *enrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *enrichHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}
	props := PropertiesFromContext(ctx)
	sc := trace.SpanContextFromContext(ctx)

	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	attrs := make([]slog.Attr, 0, rec.NumAttrs()+len(props)+2)
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, resolveAttr(a))
		return true
	})
	for _, a := range props {
		attrs = append(attrs, resolveAttr(a))
	}
	if sc.IsValid() {
		attrs = append(attrs,
			slog.String(TraceIDKey, sc.TraceID().String()),
			slog.String(SpanIDKey, sc.SpanID().String()),
		)
	}
	out.AddAttrs(attrs...)
	return h.next.Handle(ctx, out)
}

func (h *enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	resolved := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		resolved[i] = resolveAttr(a)
	}
	return &enrichHandler{next: h.next.WithAttrs(resolved)}
}

func (h *enrichHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &enrichHandler{next: h.next.WithGroup(name)}
}

// resolveAttr resolves LogValuer values, descending into groups.
func resolveAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() != slog.KindGroup {
		return a
	}
	group := a.Value.Group()
	resolved := make([]slog.Attr, len(group))
	for i, ga := range group {
		resolved[i] = resolveAttr(ga)
	}
	a.Value = slog.GroupValue(resolved...)
	return a
}
