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
	"strings"
	"sync"

	"github.com/pjscruggs/slogboot/sink"
)

// captured is one event observed by a recording sink.
type captured struct {
	Kind    sink.Kind
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// recorder collects events from every sink it opens.
type recorder struct {
	mu      sync.Mutex
	events  []captured
	opened  []sink.Config
	closed  int
	openErr error
}

// opener validates like sink.Open but records instead of writing anywhere.
func (r *recorder) opener() sink.Opener {
	return func(cfg sink.Config, _ sink.Env) (sink.Handler, error) {
		if err := sink.Validate(cfg); err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.openErr != nil {
			return nil, r.openErr
		}
		r.opened = append(r.opened, cfg)
		return &recordingSink{kind: cfg.Kind(), rec: r}, nil
	}
}

func (r *recorder) snapshot() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.events...)
}

// ofKind returns the events delivered to sinks of kind k.
func (r *recorder) ofKind(k sink.Kind) []captured {
	var out []captured
	for _, e := range r.snapshot() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type recordingSink struct {
	kind   sink.Kind
	rec    *recorder
	attrs  map[string]string
	prefix string
}

func (s *recordingSink) Enabled(context.Context, slog.Level) bool { return true }

func (s *recordingSink) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]string, len(s.attrs)+r.NumAttrs())
	for k, v := range s.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, s.prefix, a)
		return true
	})
	s.rec.mu.Lock()
	s.rec.events = append(s.rec.events, captured{Kind: s.kind, Level: r.Level, Message: r.Message, Attrs: attrs})
	s.rec.mu.Unlock()
	return nil
}

func (s *recordingSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *s
	next.attrs = make(map[string]string, len(s.attrs)+len(attrs))
	for k, v := range s.attrs {
		next.attrs[k] = v
	}
	for _, a := range attrs {
		flatten(next.attrs, s.prefix, a)
	}
	return &next
}

func (s *recordingSink) WithGroup(name string) slog.Handler {
	next := *s
	next.prefix = s.prefix + name + "."
	return &next
}

func (s *recordingSink) Close() error {
	s.rec.mu.Lock()
	s.rec.closed++
	s.rec.mu.Unlock()
	return nil
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, prefix+a.Key+".", ga)
		}
		return
	}
	dst[strings.TrimPrefix(prefix+a.Key, ".")] = v.String()
}
