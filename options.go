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
	"io"
	"os"
	"runtime"
	"time"

	"github.com/pjscruggs/slogboot/sink"
)

// Option configures a Pipeline during Bootstrap. Options are applied
// sequentially and take precedence over values read from the environment.
type Option func(*options)

// options holds the configurable settings of a Pipeline. Pointer fields
// distinguish an explicit zero value from an unset option.
type options struct {
	applicationName *string
	version         *string
	logDirectory    *string
	flushTimeout    *time.Duration
	open            sink.Opener
	stdout          io.Writer
	stderr          io.Writer
	registry        *Registry
	install         bool
	hostname        func() (string, error)
	goos            string
}

func defaultOptions() options {
	return options{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		install:  true,
		hostname: os.Hostname,
		goos:     runtime.GOOS,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.stdout == nil {
		o.stdout = io.Discard
	}
	if o.stderr == nil {
		o.stderr = io.Discard
	}
	if o.hostname == nil {
		o.hostname = os.Hostname
	}
	return o
}

// WithApplicationName overrides the application name derived from the
// executable.
func WithApplicationName(name string) Option {
	return func(o *options) {
		o.applicationName = &name
	}
}

// WithVersion sets the application version reported in the banner and on
// every event. Defaults to the main module version from the build info.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = &version
	}
}

// WithLogDirectory overrides the directory of the rolling file sink. It
// takes precedence over SLOGBOOT_LOG_DIR.
func WithLogDirectory(dir string) Option {
	return func(o *options) {
		o.logDirectory = &dir
	}
}

// WithFlushTimeout bounds how long closing a logger waits for queued events.
// It takes precedence over SLOGBOOT_FLUSH_TIMEOUT.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.flushTimeout = &timeout
	}
}

// WithSinkOpener replaces sink.Open, typically with a recording opener in
// tests.
func WithSinkOpener(open sink.Opener) Option {
	return func(o *options) {
		o.open = open
	}
}

// WithStdout redirects the banner, the remote sink announcement and the
// console sink. Nil discards them.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithStderr redirects diagnostics about the pipeline itself. Nil discards
// them.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithRegistry installs loggers into r instead of DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithoutInstall keeps slog.Default untouched. The registry still receives
// every logger.
func WithoutInstall() Option {
	return func(o *options) {
		o.install = false
	}
}
