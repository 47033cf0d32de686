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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pjscruggs/slogboot/sink"
	"github.com/pjscruggs/slogboot/slogbootasync"
)

// DefaultFlushTimeout bounds how long closing a logger waits for queued
// events to reach the sinks.
const DefaultFlushTimeout = 5 * time.Second

// BuildOptions describe one logger.
type BuildOptions struct {
	Sinks        []sink.Config
	Enrichment   Enrichment
	MinimumLevel Level
	// Overrides are applied in order; see LevelOverride.
	Overrides []LevelOverride
	// Open opens each sink. Defaults to sink.Open.
	Open sink.Opener
	// Env is handed to every sink. LevelName defaults to LevelName and
	// FlushTimeout to the logger's flush timeout.
	Env sink.Env
	// FlushTimeout bounds Close. Defaults to DefaultFlushTimeout.
	FlushTimeout time.Duration
	// QueueSize is the async queue capacity. Zero uses the slogbootasync
	// default.
	QueueSize int
}

// Logger is a built logging pipeline. The embedded *slog.Logger is safe for
// concurrent use; Close drains queued events and releases the sinks.
type Logger struct {
	*slog.Logger

	async   *slogbootasync.Handler
	kinds   []sink.Kind
	dropped atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Build opens every sink and assembles a logger that filters by level and
// source, enriches records, queues them and fans them out to the sinks.
//
// Build performs no network I/O and does not fail because a destination is
// unreachable. It fails, with an error wrapping ErrConfigurationMalformed,
// when a sink configuration is malformed. Sinks opened before the failure
// are closed.
func Build(opts BuildOptions) (*Logger, error) {
	open := opts.Open
	if open == nil {
		open = sink.Open
	}
	flushTimeout := opts.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	env := opts.Env
	if env.LevelName == nil {
		env.LevelName = LevelName
	}
	if env.FlushTimeout <= 0 {
		env.FlushTimeout = flushTimeout
	}
	errWriter := env.ErrorWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	set := &sinkSet{}
	for i, cfg := range opts.Sinks {
		if cfg == nil {
			_ = set.close(context.Background())
			return nil, fmt.Errorf("sink %d: %w: nil sink", i, ErrConfigurationMalformed)
		}
		h, err := open(cfg, env)
		if err != nil {
			_ = set.close(context.Background())
			return nil, fmt.Errorf("open %s sink: %w", cfg.Kind(), err)
		}
		set.sinks = append(set.sinks, h)
		set.kinds = append(set.kinds, cfg.Kind())
	}

	l := &Logger{kinds: set.kinds}
	fan := newFanoutHandler(set)
	asyncOpts := []slogbootasync.Option{
		slogbootasync.WithFlushTimeout(flushTimeout),
		slogbootasync.WithErrorWriter(errWriter),
		slogbootasync.WithOnDrop(func(context.Context, slog.Record) {
			l.dropped.Add(1)
		}),
	}
	if opts.QueueSize > 0 {
		asyncOpts = append(asyncOpts, slogbootasync.WithQueueSize(opts.QueueSize))
	}
	l.async = slogbootasync.Wrap(fan, asyncOpts...)

	var chain slog.Handler = l.async
	if attrs := opts.Enrichment.Attrs(); len(attrs) > 0 {
		chain = chain.WithAttrs(attrs)
	}
	chain = &enrichHandler{next: chain}
	chain = &filterHandler{
		next:   chain,
		policy: newLevelPolicy(opts.MinimumLevel, opts.Overrides),
	}
	l.Logger = slog.New(chain)
	return l, nil
}

// Sinks reports the kinds of the sinks this logger writes to, in order.
func (l *Logger) Sinks() []sink.Kind {
	return append([]sink.Kind(nil), l.kinds...)
}

// Dropped reports how many events reached the logger after Close.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains queued events and then closes every sink, both within one
// flush timeout. It returns slogbootasync.ErrFlushTimeout when the queue did not
// drain in time, joined with any sink close errors. Close is idempotent.
func (l *Logger) Close() error {
	if l == nil || l.async == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		err := l.async.Close()
		if errors.Is(err, slogbootasync.ErrFlushTimeout) {
			l.closeErr = fmt.Errorf("close logger: %w (%d events pending)", err, l.async.Pending())
			return
		}
		if err != nil {
			l.closeErr = fmt.Errorf("close logger: %w", err)
		}
	})
	return l.closeErr
}
