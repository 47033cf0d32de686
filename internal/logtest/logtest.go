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

// Package logtest records events written through slogboot pipelines in
// tests.
package logtest

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pjscruggs/slogboot/sink"
)

// Entry is one recorded event with attributes flattened to strings. Grouped
// attributes use dotted keys.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Recorder captures events for the sink kinds it is asked to record.
type Recorder struct {
	kinds map[sink.Kind]bool

	mu      sync.Mutex
	entries []Entry
	opened  []sink.Config
}

// New records events sent to the given sink kinds, console when none are
// named. Other sinks are validated and then discarded.
func New(kinds ...sink.Kind) *Recorder {
	if len(kinds) == 0 {
		kinds = []sink.Kind{sink.KindConsole}
	}
	r := &Recorder{kinds: make(map[sink.Kind]bool, len(kinds))}
	for _, k := range kinds {
		r.kinds[k] = true
	}
	return r
}

// Open is a sink.Opener.
func (r *Recorder) Open(cfg sink.Config, _ sink.Env) (sink.Handler, error) {
	if err := sink.Validate(cfg); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.opened = append(r.opened, cfg)
	r.mu.Unlock()
	if !r.kinds[cfg.Kind()] {
		return &handler{}, nil
	}
	return &handler{r: r}, nil
}

// Opened returns every configuration passed to Open.
func (r *Recorder) Opened() []sink.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sink.Config(nil), r.opened...)
}

// Entries returns a copy of the recorded events.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	var out []string
	for _, e := range r.Entries() {
		out = append(out, e.Message)
	}
	return out
}

// Find returns the first event with the given message.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return e, true
		}
	}
	return Entry{}, false
}

type handler struct {
	r      *Recorder
	attrs  map[string]string
	prefix string
}

func (h *handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	if h.r == nil {
		return nil
	}
	e := Entry{Level: rec.Level, Message: rec.Message, Attrs: make(map[string]string, len(h.attrs)+rec.NumAttrs())}
	for k, v := range h.attrs {
		e.Attrs[k] = v
	}
	rec.Attrs(func(a slog.Attr) bool {
		flatten(e.Attrs, h.prefix, a)
		return true
	})
	h.r.mu.Lock()
	h.r.entries = append(h.r.entries, e)
	h.r.mu.Unlock()
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &handler{r: h.r, prefix: h.prefix, attrs: make(map[string]string, len(h.attrs)+len(attrs))}
	for k, v := range h.attrs {
		next.attrs[k] = v
	}
	for _, a := range attrs {
		flatten(next.attrs, h.prefix, a)
	}
	return next
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{r: h.r, attrs: h.attrs, prefix: join(h.prefix, name)}
}

func (h *handler) Close() error { return nil }

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, join(prefix, a.Key), ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[join(prefix, a.Key)] = v.String()
}

func join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return strings.Join([]string{prefix, key}, ".")
	}
}
