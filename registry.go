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
	"os"
	"sync"
	"sync/atomic"
)

// Registry holds the single active Logger of a process. Code logs through
// [Registry.Handler], which always reaches whichever Logger is current, so
// replacing the Logger needs no re-wiring of callers.
//
// Emission holds a read lock while handing the record to the current Logger,
// which only enqueues it. Swap takes the write lock, so no event straddles a
// swap and none reaches the previous Logger after Swap returns.
type Registry struct {
	mu      sync.RWMutex
	current *Logger
	gen     uint64
}

var defaultRegistry = NewRegistry(nil)

// DefaultRegistry returns the process-wide registry used by Bootstrap unless
// WithRegistry is given.
func DefaultRegistry() *Registry { return defaultRegistry }

// NewRegistry returns a registry holding initial, or a stderr logger when
// initial is nil.
func NewRegistry(initial *Logger) *Registry {
	if initial == nil {
		initial = fallbackLogger()
	}
	return &Registry{current: initial}
}

// fallbackLogger writes text to stderr. It is current before Bootstrap and
// after CloseAndFlush.
func fallbackLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       LevelVerbose,
		ReplaceAttr: levelReplacer,
	}))}
}

// levelReplacer renders slog levels with the names used throughout slogboot.
func levelReplacer(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, LevelName(lvl))
		}
	}
	return a
}

// Current returns the active Logger. It is never nil.
func (r *Registry) Current() *Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Swap installs next and returns the Logger it replaced. The caller owns the
// returned Logger and should Close it to drain events it already accepted.
func (r *Registry) Swap(next *Logger) *Logger {
	if next == nil {
		next = fallbackLogger()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current
	r.current = next
	r.gen++
	return prev
}

// Handler returns a slog.Handler that forwards to the current Logger.
func (r *Registry) Handler() slog.Handler {
	return &proxyHandler{reg: r, cache: new(atomic.Pointer[derived])}
}

// Logger returns a *slog.Logger over Handler.
func (r *Registry) Logger() *slog.Logger {
	return slog.New(r.Handler())
}

// Install makes the registry the target of slog.Default and the log package.
func (r *Registry) Install() {
	slog.SetDefault(r.Logger())
}

// handlerOp is one WithAttrs or WithGroup call to replay on a new Logger.
type handlerOp struct {
	attrs []slog.Attr
	group string
}

// derived caches the replayed handler for one registry generation.
type derived struct {
	gen uint64
	h   slog.Handler
}

// proxyHandler resolves the current Logger's handler on every call and
// replays the WithAttrs and WithGroup chain it was derived through.
type proxyHandler struct {
	reg   *Registry
	ops   []handlerOp
	cache *atomic.Pointer[derived]
}

// resolve must be called with the registry read lock held.
func (p *proxyHandler) resolve() slog.Handler {
	gen := p.reg.gen
	if d := p.cache.Load(); d != nil && d.gen == gen {
		return d.h
	}
	h := p.reg.current.Handler()
	for _, op := range p.ops {
		if op.attrs != nil {
			h = h.WithAttrs(op.attrs)
		} else {
			h = h.WithGroup(op.group)
		}
	}
	p.cache.Store(&derived{gen: gen, h: h})
	return h
}

func (p *proxyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.resolve().Enabled(ctx, level)
}

func (p *proxyHandler) Handle(ctx context.Context, rec slog.Record) error {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	h := p.resolve()
	if !h.Enabled(ctx, rec.Level) {
		return nil
	}
	return h.Handle(ctx, rec)
}

func (p *proxyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return p
	}
	return p.with(handlerOp{attrs: append([]slog.Attr(nil), attrs...)})
}

func (p *proxyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return p
	}
	return p.with(handlerOp{group: name})
}

func (p *proxyHandler) with(op handlerOp) *proxyHandler {
	ops := make([]handlerOp, len(p.ops), len(p.ops)+1)
	copy(ops, p.ops)
	return &proxyHandler{
		reg:   p.reg,
		ops:   append(ops, op),
		cache: new(atomic.Pointer[derived]),
	}
}
