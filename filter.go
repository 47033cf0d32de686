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
)

const (
	// SourceKey is the attribute naming the component that emitted an event.
	// Level overrides match against it.
	SourceKey = "source_context"
	// HostSource is the source of the hosting framework's own events. Its
	// dotted children, such as "host.http", share its override.
	HostSource = "host"
)

// LevelOverride sets the minimum level for events whose source is Source or
// one of its dotted children.
type LevelOverride struct {
	Source string
	Level  Level
}

// ForSource returns a logger whose events carry source name, so per-source
// overrides apply to them.
func ForSource(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(SourceKey, name))
}

// levelPolicy holds the global minimum and the ordered overrides.
type levelPolicy struct {
	minimum   slog.Level
	overrides []LevelOverride
	floor     slog.Level
}

func newLevelPolicy(minimum Level, overrides []LevelOverride) *levelPolicy {
	p := &levelPolicy{
		minimum:   minimum.Level(),
		overrides: append([]LevelOverride(nil), overrides...),
		floor:     minimum.Level(),
	}
	for _, o := range p.overrides {
		if o.Level.Level() < p.floor {
			p.floor = o.Level.Level()
		}
	}
	return p
}

// threshold returns the minimum level for source. The longest matching
// override wins and among equal names the last registered one.
func (p *levelPolicy) threshold(source string) slog.Level {
	best := -1
	for i, o := range p.overrides {
		if !sourceMatches(o.Source, source) {
			continue
		}
		if best < 0 || len(o.Source) >= len(p.overrides[best].Source) {
			best = i
		}
	}
	if best < 0 {
		return p.minimum
	}
	return p.overrides[best].Level.Level()
}

// sourceMatches reports whether override name applies to source.
func sourceMatches(name, source string) bool {
	if name == "" || source == "" {
		return false
	}
	if source == name {
		return true
	}
	return strings.HasPrefix(source, name) && source[len(name)] == '.'
}

// filterHandler drops records below the threshold of their source.
type filterHandler struct {
	next    slog.Handler
	policy  *levelPolicy
	source  string
	grouped bool
}

func (h *filterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	lowest := h.policy.floor
	if h.source != "" {
		lowest = h.policy.threshold(h.source)
	}
	return level >= lowest && h.next.Enabled(ctx, level)
}

func (h *filterHandler) Handle(ctx context.Context, rec slog.Record) error {
	source := h.source
	if !h.grouped {
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == SourceKey {
				source = a.Value.Resolve().String()
				return false
			}
			return true
		})
	}
	if rec.Level < h.policy.threshold(source) {
		return nil
	}
	return h.next.Handle(ctx, rec)
}

func (h *filterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := &filterHandler{
		next:    h.next.WithAttrs(attrs),
		policy:  h.policy,
		source:  h.source,
		grouped: h.grouped,
	}
	if !h.grouped {
		for _, a := range attrs {
			if a.Key == SourceKey {
				next.source = a.Value.Resolve().String()
			}
		}
	}
	return next
}

func (h *filterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &filterHandler{
		next:    h.next.WithGroup(name),
		policy:  h.policy,
		source:  h.source,
		grouped: true,
	}
}
