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
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

func (c Console) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "", FormatAuto, FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("%w: unknown console format %q", ErrMalformed, c.Format)
	}
}

func openConsole(c Console, env Env) (Handler, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level:       acceptAll,
		ReplaceAttr: levelRenamer(env.LevelName),
	}
	var h slog.Handler
	if useText(c.Format, env.Stdout) {
		h = slog.NewTextHandler(env.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(env.Stdout, opts)
	}
	return closingHandler{Handler: h, close: syncer(env.Stdout)}, nil
}

// useText resolves FormatAuto against the destination.
func useText(format string, w io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText:
		return true
	case FormatJSON:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// syncer flushes a file-backed console on close without closing it.
func syncer(w io.Writer) func() error {
	return func() error {
		f, ok := w.(*os.File)
		if !ok {
			return nil
		}
		if err := f.Sync(); err != nil && !isIgnorableSyncError(err) {
			return err
		}
		return nil
	}
}

// isIgnorableSyncError reports errors returned when syncing pipes and ttys.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "handle is invalid")
}
