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

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pjscruggs/slogboot"
)

// Lifecycle messages.
const (
	MessageConfiguring = "configuring host"
	MessageStarting    = "starting host"
	MessageTerminated  = "program terminated unexpectedly"
	MessageStopped     = "host stopped"
)

// ErrorMessageKey carries the failure text on the Fatal event. The error
// value itself is attached under "error".
const ErrorMessageKey = "error_message"

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// State is a step of the supervised lifecycle.
type State int

const (
	Idle State = iota
	BootstrapActive
	HostBuilding
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BootstrapActive:
		return "bootstrap_active"
	case HostBuilding:
		return "host_building"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UpgradeFunc replaces the bootstrap logger with the steady-state one.
type UpgradeFunc func(ctx context.Context, in slogboot.UpgradeInput) error

// Host is the application being supervised.
type Host interface {
	// Build constructs the host's configuration and services. It must call
	// upgrade once both exist.
	Build(ctx context.Context, upgrade UpgradeFunc) error
	// Run serves until ctx is done or the host fails.
	Run(ctx context.Context) error
}

// Shutdowner is implemented by hosts that own resources the logging pipeline
// still writes through after Run returns, such as the tracer provider handed
// to upgrade. Run calls Shutdown once the pipeline has been flushed.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Option configures Run.
type Option func(*config)

type config struct {
	env       slogboot.EnvironmentReader
	stderr    io.Writer
	hook      func(from, to State)
	bootstrap []slogboot.Option
}

// WithEnvironment sets where environment values are read. Defaults to the
// process environment.
func WithEnvironment(env slogboot.EnvironmentReader) Option {
	return func(c *config) { c.env = env }
}

// WithStderr redirects diagnostics. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.stderr = w
		}
	}
}

// WithTransitionHook observes every state change.
func WithTransitionHook(hook func(from, to State)) Option {
	return func(c *config) { c.hook = hook }
}

// WithBootstrapOptions passes options to slogboot.Bootstrap.
func WithBootstrapOptions(opts ...slogboot.Option) Option {
	return func(c *config) { c.bootstrap = append(c.bootstrap, opts...) }
}

type supervisor struct {
	cfg   config
	state State
}

func (s *supervisor) transition(to State) {
	from := s.state
	s.state = to
	if s.cfg.hook != nil {
		s.cfg.hook(from, to)
	}
}

// Run supervises host and returns the process exit code.
//
// A bootstrap failure is written to stderr and yields ExitFailure without
// touching the host. Once logging is up, an error or panic from the host is
// logged at Fatal and echoed to stderr. In every case a final "host stopped"
// event is written and the pipeline is flushed before Run returns; a host
// implementing Shutdowner is shut down after that flush. A host that stops
// because ctx was canceled exits cleanly.
func Run(ctx context.Context, host Host, opts ...Option) int {
	cfg := config{env: slogboot.OSEnvironment, stderr: os.Stderr}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := &supervisor{cfg: cfg}

	s.transition(BootstrapActive)
	bootOpts := append([]slogboot.Option{slogboot.WithStderr(cfg.stderr)}, cfg.bootstrap...)
	pipeline, err := slogboot.Bootstrap(cfg.env, bootOpts...)
	if err != nil {
		fmt.Fprintf(cfg.stderr, "[slogboot] ERROR: %v\n", err)
		s.transition(Terminated)
		return ExitFailure
	}
	logger := pipeline.Logger()

	err = s.serve(ctx, host, pipeline, logger)
	s.transition(ShuttingDown)

	code := ExitOK
	if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		code = ExitFailure
		attrs := []slog.Attr{
			slog.String(ErrorMessageKey, err.Error()),
			slog.Any("error", err),
		}
		var pe *PanicError
		if errors.As(err, &pe) && pe.Stack != "" {
			attrs = append(attrs, slog.String(StackKey, pe.Stack))
		}
		logger.LogAttrs(ctx, slogboot.LevelFatal.Level(), MessageTerminated, attrs...)
		fmt.Fprintf(cfg.stderr, "%s terminated unexpectedly: %v\n", pipeline.Inputs().ApplicationName, err)
	}
	logger.Info(MessageStopped)
	if err := pipeline.CloseAndFlush(); err != nil {
		fmt.Fprintf(cfg.stderr, "[slogboot] WARNING: %v\n", err)
	}
	if sd, ok := host.(Shutdowner); ok {
		if err := sd.Shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(cfg.stderr, "[slogboot] WARNING: host shutdown: %v\n", err)
		}
	}
	s.transition(Terminated)
	return code
}

// serve builds and runs the host, converting a panic into an error.
func (s *supervisor) serve(ctx context.Context, host Host, p *slogboot.Pipeline, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{State: s.state, Value: r, Stack: captureStack()}
		}
	}()
	if host == nil {
		return errors.New("supervisor: nil host")
	}

	s.transition(HostBuilding)
	logger.InfoContext(ctx, MessageConfiguring)
	upgrade := func(uctx context.Context, in slogboot.UpgradeInput) error {
		_, err := p.Upgrade(uctx, in)
		return err
	}
	if err := host.Build(ctx, upgrade); err != nil {
		return fmt.Errorf("build host: %w", err)
	}

	s.transition(Running)
	logger.InfoContext(ctx, MessageStarting)
	if err := host.Run(ctx); err != nil {
		return fmt.Errorf("run host: %w", err)
	}
	return nil
}
