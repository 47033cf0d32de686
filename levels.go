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
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Level represents the severity of a log event. It extends slog.Level with a
// Verbose level below Debug and a Fatal level above Error while keeping the
// underlying integer representation compatible with slog.Level.
type Level slog.Level

// Severity levels ordered Verbose < Debug < Information < Warning < Error < Fatal.
const (
	// LevelVerbose is the most detailed level, below slog's Debug.
	LevelVerbose Level = -8

	// LevelDebug maps to slog.LevelDebug.
	LevelDebug Level = Level(slog.LevelDebug) // -4

	// LevelInformation maps to slog.LevelInfo.
	LevelInformation Level = Level(slog.LevelInfo) // 0

	// LevelWarning maps to slog.LevelWarn.
	LevelWarning Level = Level(slog.LevelWarn) // 4

	// LevelError maps to slog.LevelError.
	LevelError Level = Level(slog.LevelError) // 8

	// LevelFatal marks failures that terminate the process.
	LevelFatal Level = 12
)

var levelNames = []struct {
	level Level
	name  string
}{
	{LevelVerbose, "VERBOSE"},
	{LevelDebug, "DEBUG"},
	{LevelInformation, "INFORMATION"},
	{LevelWarning, "WARNING"},
	{LevelError, "ERROR"},
	{LevelFatal, "FATAL"},
}

// String returns the canonical upper-case name of the level. Values between
// the defined constants render as the nearest lower name plus the offset
// (for example "INFORMATION+1"). Values below Verbose fall back to slog's
// own rendering.
func (l Level) String() string {
	if l < LevelVerbose {
		return slog.Level(l).String()
	}
	base := levelNames[0]
	for _, candidate := range levelNames {
		if l < candidate.level {
			break
		}
		base = candidate
	}
	if base.level == l {
		return base.name
	}
	return fmt.Sprintf("%s+%d", base.name, int(l-base.level))
}

// Level returns the underlying slog.Level so Level satisfies slog.Leveler.
func (l Level) Level() slog.Level {
	return slog.Level(l)
}

// ParseLevel converts a textual level into a Level. Names are matched
// case-insensitively and accept the common aliases trace, info, warn and
// critical. Plain integers are accepted as raw slog levels.
func ParseLevel(raw string) (Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "verbose", "trace":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	case "information", "info":
		return LevelInformation, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal", "critical":
		return LevelFatal, nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return Level(n), nil
	}
	return LevelInformation, fmt.Errorf("%w: unknown level %q", ErrConfigurationMalformed, raw)
}

// LevelName renders a raw slog level using Level names. It is handed to sinks
// so every destination agrees on severity labels.
func LevelName(level slog.Level) string {
	return Level(level).String()
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseLevel.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
