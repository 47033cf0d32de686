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

	"github.com/pjscruggs/slogboot/sink"
)

// fanoutHandler delivers each record to every sink. A failing or panicking
// sink does not keep the record from the others.
type fanoutHandler struct {
	handlers []slog.Handler
	owners   *sinkSet
}

// sinkSet is shared by every handler derived from one fan-out and closes the
// underlying sinks.
type sinkSet struct {
	sinks []sink.Handler
	kinds []sink.Kind
}

func newFanoutHandler(set *sinkSet) *fanoutHandler {
	handlers := make([]slog.Handler, len(set.sinks))
	for i, s := range set.sinks {
		handlers[i] = s
	}
	return &fanoutHandler{handlers: handlers, owners: set}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for idx, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if idx < len(h.handlers)-1 {
			rec = record.Clone()
		}
		if err := handleSafely(ctx, handler, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", h.owners.kinds[idx], err))
		}
	}
	return errors.Join(errs...)
}

func handleSafely(ctx context.Context, h slog.Handler, rec slog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return h.Handle(ctx, rec)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next, owners: h.owners}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next, owners: h.owners}
}

// CloseContext closes every sink and joins their errors. Sinks that flush
// over the network give up when ctx is done.
func (h *fanoutHandler) CloseContext(ctx context.Context) error {
	return h.owners.close(ctx)
}

func (s *sinkSet) close(ctx context.Context) error {
	var errs []error
	for i, sh := range s.sinks {
		if err := sink.CloseContext(ctx, sh); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", s.kinds[i], err))
		}
	}
	return errors.Join(errs...)
}
