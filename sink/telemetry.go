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

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TelemetryScope is the instrumentation scope of spans created by the
	// telemetry sink.
	TelemetryScope = "github.com/pjscruggs/slogboot/sink"
	// InstrumentationKeyAttr tags events recorded in key-only mode.
	InstrumentationKeyAttr = "telemetry.instrumentation_key"
	standaloneSpanName     = "log"
)

func (c Telemetry) validate() error {
	if c.TracerProvider == nil && strings.TrimSpace(c.InstrumentationKey) == "" {
		return fmt.Errorf("%w: telemetry sink needs a tracer provider or an instrumentation key", ErrMalformed)
	}
	return nil
}

func openTelemetry(c Telemetry, env Env) (Handler, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	provider := c.TracerProvider
	bound := provider != nil
	if !bound {
		provider = otel.GetTracerProvider()
	}
	conv := c.Converter
	if conv == nil {
		conv = DefaultConverter(env.LevelName)
	}
	return &telemetryHandler{
		tracer: provider.Tracer(TelemetryScope),
		bound:  bound,
		key:    strings.TrimSpace(c.InstrumentationKey),
		conv:   conv,
	}, nil
}

// DefaultConverter names the event after the record message and flattens
// attributes with dotted group prefixes.
func DefaultConverter(levelName func(slog.Level) string) EventConverter {
	if levelName == nil {
		levelName = func(l slog.Level) string { return l.String() }
	}
	return func(_ context.Context, rec slog.Record) (string, []attribute.KeyValue) {
		kv := make([]attribute.KeyValue, 0, rec.NumAttrs()+2)
		kv = append(kv,
			attribute.String("log.severity", levelName(rec.Level)),
			attribute.String("log.message", rec.Message),
		)
		rec.Attrs(func(a slog.Attr) bool {
			kv = appendAttr(kv, "", a)
			return true
		})
		return rec.Message, kv
	}
}

// appendAttr converts a slog attribute to OpenTelemetry attributes.
func appendAttr(dst []attribute.KeyValue, prefix string, a slog.Attr) []attribute.KeyValue {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return dst
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	switch v.Kind() {
	case slog.KindString:
		return append(dst, attribute.String(key, v.String()))
	case slog.KindInt64:
		return append(dst, attribute.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(dst, attribute.Int64(key, int64(v.Uint64())))
	case slog.KindFloat64:
		return append(dst, attribute.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(dst, attribute.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(dst, attribute.String(key, v.Duration().String()))
	case slog.KindTime:
		return append(dst, attribute.String(key, v.Time().Format(time.RFC3339Nano)))
	case slog.KindGroup:
		for _, ga := range v.Group() {
			dst = appendAttr(dst, key, ga)
		}
		return dst
	default:
		if err, ok := v.Any().(error); ok {
			return append(dst, attribute.String(key, err.Error()))
		}
		if s, ok := v.Any().(fmt.Stringer); ok {
			return append(dst, attribute.String(key, s.String()))
		}
		return append(dst, attribute.String(key, fmt.Sprint(v.Any())))
	}
}

type telemetryHandler struct {
	tracer trace.Tracer
	bound  bool
	key    string
	conv   EventConverter
	attrs  []attribute.KeyValue
	groups []string
}

func (h *telemetryHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *telemetryHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(h.groups) > 0 {
		grouped := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
		var attrs []any
		rec.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a)
			return true
		})
		grouped.AddAttrs(nestAttrs(h.groups, attrs))
		rec = grouped
	}
	name, kv := h.conv(ctx, rec)
	all := make([]attribute.KeyValue, 0, len(h.attrs)+len(kv)+1)
	all = append(all, h.attrs...)
	all = append(all, kv...)
	if h.key != "" && !h.bound {
		all = append(all, attribute.String(InstrumentationKeyAttr, h.key))
	}
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	recErr := recordError(rec)

	if h.bound {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.AddEvent(name, trace.WithTimestamp(ts), trace.WithAttributes(all...))
			if recErr != nil && rec.Level >= slog.LevelError {
				span.RecordError(recErr, trace.WithTimestamp(ts))
			}
			return nil
		}
	}

	parent := ctx
	if !h.bound {
		parent = context.Background()
	}
	_, span := h.tracer.Start(parent, standaloneSpanName,
		trace.WithTimestamp(ts),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent(name, trace.WithTimestamp(ts), trace.WithAttributes(all...))
	if rec.Level >= slog.LevelError {
		if recErr != nil {
			span.RecordError(recErr, trace.WithTimestamp(ts))
		}
		span.SetStatus(codes.Error, rec.Message)
	}
	span.End(trace.WithTimestamp(ts))
	return nil
}

func (h *telemetryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	prefix := strings.Join(h.groups, ".")
	next.attrs = append([]attribute.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, prefix, a)
	}
	return &next
}

func (h *telemetryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *telemetryHandler) Close() error { return nil }

// nestAttrs wraps attrs in the group path, innermost last.
func nestAttrs(groups []string, attrs []any) slog.Attr {
	a := slog.Group(groups[len(groups)-1], attrs...)
	for i := len(groups) - 2; i >= 0; i-- {
		a = slog.Group(groups[i], a)
	}
	return a
}

// recordError returns the first error-valued attribute of rec.
func recordError(rec slog.Record) error {
	var found error
	rec.Attrs(func(a slog.Attr) bool {
		if err, ok := a.Value.Resolve().Any().(error); ok && err != nil {
			found = err
			return false
		}
		return true
	})
	return found
}
