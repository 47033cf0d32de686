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

package slogbootasync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultQueueSize is the queue capacity used when WithQueueSize is not given.
const DefaultQueueSize = 1024

// ErrFlushTimeout indicates Close returned before the queue was fully drained.
var ErrFlushTimeout = errors.New("slogbootasync: flush timeout")

// DropHandler observes records that arrive after Close.
type DropHandler func(ctx context.Context, rec slog.Record)

// ContextCloser is implemented by inner handlers whose Close can honour a
// deadline. Close hands it whatever is left of the flush timeout.
type ContextCloser interface {
	CloseContext(ctx context.Context) error
}

type config struct {
	queueSize    int
	flushTimeout time.Duration
	onDrop       DropHandler
	errWriter    io.Writer
}

// Option customizes a Handler.
type Option func(*config)

// WithQueueSize sets the queue capacity. Zero makes every Handle wait for the
// worker; negative values fall back to DefaultQueueSize.
func WithQueueSize(size int) Option {
	return func(cfg *config) {
		cfg.queueSize = size
	}
}

// WithFlushTimeout bounds Close, covering both the drain and the close of
// the inner handler. Zero waits indefinitely.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.flushTimeout = timeout
	}
}

// WithOnDrop registers a callback invoked for records handled after Close.
func WithOnDrop(fn DropHandler) Option {
	return func(cfg *config) {
		cfg.onDrop = fn
	}
}

// WithErrorWriter directs inner handler errors and panics to w. Nil silences
// them.
func WithErrorWriter(w io.Writer) Option {
	return func(cfg *config) {
		cfg.errWriter = w
	}
}

// Handler queues records and hands them to the wrapped handler from a single
// worker goroutine, preserving emission order. A full queue blocks the
// caller; records are never dropped while the handler is open.
type Handler struct {
	inner slog.Handler
	state *queueState
}

type queueState struct {
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	queue   chan queued
	done    chan struct{}

	cfg       config
	closeOnce sync.Once
	closeErr  error
	closer    func(context.Context) error
}

type queued struct {
	ctx     context.Context
	rec     slog.Record
	handler slog.Handler
}

// Wrap returns a Handler around inner and starts its worker. Close drains the
// queue and then closes inner when it exposes Close or CloseContext.
func Wrap(inner slog.Handler, opts ...Option) *Handler {
	cfg := config{queueSize: DefaultQueueSize, errWriter: os.Stderr}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.queueSize < 0 {
		cfg.queueSize = DefaultQueueSize
	}

	state := &queueState{
		closing: make(chan struct{}),
		queue:   make(chan queued, cfg.queueSize),
		done:    make(chan struct{}),
		cfg:     cfg,
		closer:  closerFor(inner),
	}
	go state.work()
	return &Handler{inner: inner, state: state}
}

func (s *queueState) work() {
	defer close(s.done)
	for item := range s.queue {
		s.handle(item)
	}
}

func (s *queueState) handle(item queued) {
	defer func() {
		if r := recover(); r != nil {
			s.reportf("slogbootasync: recovered panic from handler: %v\n", r)
		}
	}()
	if err := item.handler.Handle(item.ctx, item.rec); err != nil {
		s.reportf("slogbootasync: handler error: %v\n", err)
	}
}

func (s *queueState) reportf(format string, args ...any) {
	if s.cfg.errWriter != nil {
		_, _ = fmt.Fprintf(s.cfg.errWriter, format, args...)
	}
}

// Pending reports how many records are queued but not yet handled.
func (h *Handler) Pending() int {
	return len(h.state.queue)
}

// Enabled defers to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle clones rec onto the queue, waiting while it is full. Records that
// arrive after Close, or are still waiting when Close starts, go to the drop
// callback instead.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	s := h.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(ctx, rec.Clone())
		return nil
	}
	item := queued{ctx: ctx, rec: rec.Clone(), handler: h.inner}
	select {
	case s.queue <- item:
	case <-s.closing:
		s.drop(ctx, item.rec)
	}
	return nil
}

func (s *queueState) drop(ctx context.Context, rec slog.Record) {
	if s.cfg.onDrop != nil {
		s.cfg.onDrop(ctx, rec)
	}
}

// WithAttrs returns a child handler sharing the same queue.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup returns a child handler sharing the same queue.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), state: h.state}
}

// Close stops accepting records, waits for the queue to drain and closes the
// inner handler. With a flush timeout both steps share one deadline; when the
// drain misses it Close returns ErrFlushTimeout and the inner handler gets an
// expired context.
func (h *Handler) Close() error {
	s := h.state
	s.closeOnce.Do(func() {
		ctx := context.Background()
		if s.cfg.flushTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.flushTimeout)
			defer cancel()
		}

		close(s.closing)
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		select {
		case <-s.done:
		case <-ctx.Done():
			s.closeErr = ErrFlushTimeout
		}

		if s.closer != nil {
			if err := s.closer(ctx); err != nil {
				if s.closeErr == nil {
					s.closeErr = err
				} else {
					s.closeErr = errors.Join(s.closeErr, err)
				}
			}
		}
	})
	return s.closeErr
}

func closerFor(inner slog.Handler) func(context.Context) error {
	switch c := inner.(type) {
	case ContextCloser:
		return c.CloseContext
	case interface{ Close() error }:
		return func(context.Context) error { return c.Close() }
	case interface{ Close() }:
		return func(context.Context) error {
			c.Close()
			return nil
		}
	}
	return nil
}
