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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformed reports sink configuration that can never work, such as a file
// path template without a date placeholder or an unparsable server URL.
var ErrMalformed = errors.New("slogboot: malformed sink configuration")

// Kind identifies the variant of a [Config].
type Kind int

const (
	// KindConsole identifies [Console].
	KindConsole Kind = iota
	// KindRollingFile identifies [RollingFile].
	KindRollingFile
	// KindRemoteLog identifies [RemoteLog].
	KindRemoteLog
	// KindTelemetry identifies [Telemetry].
	KindTelemetry
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConsole:
		return "console"
	case KindRollingFile:
		return "file"
	case KindRemoteLog:
		return "remote"
	case KindTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Config is the closed set of sink configurations: [Console], [RollingFile],
// [RemoteLog] and [Telemetry].
type Config interface {
	Kind() Kind
	isSinkConfig()
}

// Console formats accepted by [Console.Format].
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Console writes events to standard output.
type Console struct {
	// Format is one of FormatAuto, FormatText or FormatJSON. Empty means
	// FormatAuto, which picks text on a terminal and JSON otherwise.
	Format string
}

// Kind implements Config.
func (Console) Kind() Kind    { return KindConsole }
func (Console) isSinkConfig() {}

// DatePlaceholder is replaced with the current period in
// [RollingFile.PathTemplate].
const DatePlaceholder = "{date}"

// RollingFile appends JSON lines to a file whose name embeds the current
// period.
type RollingFile struct {
	// PathTemplate is the file path with exactly one DatePlaceholder in its
	// base name, e.g. "/home/LogFiles/api-{date}.log".
	PathTemplate string
	// RotationInterval is the period boundary. Zero means daily.
	RotationInterval time.Duration
	// RetainedFileCount bounds how many matching files are kept.
	RetainedFileCount int
	// FileSizeLimitBytes triggers a supplemental rotation within a period.
	FileSizeLimitBytes int64
	// FlushInterval is how often buffered events reach the file.
	FlushInterval time.Duration
	// Shared serializes appends with other processes through a lock file.
	Shared bool
}

// Kind implements Config.
func (RollingFile) Kind() Kind    { return KindRollingFile }
func (RollingFile) isSinkConfig() {}

// RemoteLog ships events to a Seq compatible log server.
type RemoteLog struct {
	URL    string
	APIKey string
}

// Kind implements Config.
func (RemoteLog) Kind() Kind    { return KindRemoteLog }
func (RemoteLog) isSinkConfig() {}

// EventConverter turns a record into a span event name and attributes.
type EventConverter func(ctx context.Context, rec slog.Record) (string, []attribute.KeyValue)

// Telemetry forwards events to an OpenTelemetry tracer provider.
//
// When TracerProvider is set the sink is bound to a live client: events are
// added to the span active in the emitting context, which correlates them with
// the surrounding trace. When only InstrumentationKey is set, events are
// recorded on standalone spans of the global tracer provider, tagged with the
// key, and cannot be correlated.
type Telemetry struct {
	InstrumentationKey string
	TracerProvider     trace.TracerProvider
	Converter          EventConverter
}

// Kind implements Config.
func (Telemetry) Kind() Kind    { return KindTelemetry }
func (Telemetry) isSinkConfig() {}

// Env carries the process-level collaborators shared by every sink.
type Env struct {
	// LevelName renders levels. Defaults to slog.Level.String.
	LevelName func(slog.Level) string
	// Stdout receives console output. Defaults to os.Stdout.
	Stdout io.Writer
	// ErrorWriter receives sink diagnostics. Defaults to os.Stderr.
	ErrorWriter io.Writer
	// FlushTimeout bounds the final flush performed by Close. Defaults to 5s.
	FlushTimeout time.Duration
	// HTTPClient is used by the remote sink. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultFlushTimeout bounds Close when Env.FlushTimeout is unset.
const DefaultFlushTimeout = 5 * time.Second

func (e Env) withDefaults() Env {
	if e.LevelName == nil {
		e.LevelName = func(l slog.Level) string { return l.String() }
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.ErrorWriter == nil {
		e.ErrorWriter = os.Stderr
	}
	if e.FlushTimeout <= 0 {
		e.FlushTimeout = DefaultFlushTimeout
	}
	if e.HTTPClient == nil {
		e.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// warnf writes a diagnostic line to the error writer.
func (e Env) warnf(format string, args ...any) {
	if e.ErrorWriter == nil {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintf(e.ErrorWriter, "[slogboot] WARNING: %s\n", msg)
}
