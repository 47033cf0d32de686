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
)

// Handler is a slog.Handler that owns resources released by Close.
type Handler interface {
	slog.Handler
	// Close flushes buffered events and releases the destination. It is safe
	// to call more than once.
	Close() error
}

// Opener opens a handler for a sink configuration.
type Opener func(cfg Config, env Env) (Handler, error)

// acceptAll is the minimum level handed to the stdlib handlers. Filtering
// happens upstream of every sink.
const acceptAll = slog.Level(-1 << 10)

// Open validates cfg and returns a handler writing to its destination.
func Open(cfg Config, env Env) (Handler, error) {
	env = env.withDefaults()
	switch c := cfg.(type) {
	case Console:
		return openConsole(c, env)
	case *Console:
		return openConsole(*c, env)
	case RollingFile:
		return openRollingFile(c, env)
	case *RollingFile:
		return openRollingFile(*c, env)
	case RemoteLog:
		return openRemoteLog(c, env)
	case *RemoteLog:
		return openRemoteLog(*c, env)
	case Telemetry:
		return openTelemetry(c, env)
	case *Telemetry:
		return openTelemetry(*c, env)
	case nil:
		return nil, fmt.Errorf("%w: nil sink", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unsupported sink %T", ErrMalformed, cfg)
	}
}

// Validate reports whether cfg would be accepted by Open without opening
// anything.
func Validate(cfg Config) error {
	switch c := cfg.(type) {
	case Console:
		return c.validate()
	case *Console:
		return c.validate()
	case RollingFile:
		return c.validate()
	case *RollingFile:
		return c.validate()
	case RemoteLog:
		_, err := c.endpoint()
		return err
	case *RemoteLog:
		_, err := c.endpoint()
		return err
	case Telemetry:
		return c.validate()
	case *Telemetry:
		return c.validate()
	case nil:
		return fmt.Errorf("%w: nil sink", ErrMalformed)
	default:
		return fmt.Errorf("%w: unsupported sink %T", ErrMalformed, cfg)
	}
}

// CloseContext closes h, handing ctx to sinks whose final flush can give up
// early. Other handlers are closed with Close.
func CloseContext(ctx context.Context, h Handler) error {
	if c, ok := h.(interface {
		CloseContext(context.Context) error
	}); ok {
		return c.CloseContext(ctx)
	}
	return h.Close()
}

// closingHandler pairs a stdlib handler with the resource behind its writer.
type closingHandler struct {
	slog.Handler
	close    func() error
	closeCtx func(context.Context) error
}

func (h closingHandler) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

func (h closingHandler) CloseContext(ctx context.Context) error {
	if h.closeCtx == nil {
		return h.Close()
	}
	return h.closeCtx(ctx)
}

// levelRenamer returns a ReplaceAttr that renders the level key with name.
func levelRenamer(name func(slog.Level) string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				return slog.String(slog.LevelKey, name(lvl))
			}
		}
		return a
	}
}
