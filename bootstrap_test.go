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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pjscruggs/slogboot/sink"
)

type bootstrapFixture struct {
	pipeline *Pipeline
	rec      *recorder
	stdout   *bytes.Buffer
	registry *Registry
}

func bootstrapForTest(t *testing.T, env MapEnvironment, opts ...Option) bootstrapFixture {
	t.Helper()
	f := bootstrapFixture{rec: &recorder{}, stdout: &bytes.Buffer{}, registry: NewRegistry(nil)}
	base := []Option{
		WithApplicationName("api"),
		WithVersion("1.4.0"),
		WithSinkOpener(f.rec.opener()),
		WithStdout(f.stdout),
		WithStderr(&bytes.Buffer{}),
		WithRegistry(f.registry),
		WithoutInstall(),
		WithLogDirectory(t.TempDir()),
	}
	p, err := Bootstrap(env, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Bootstrap returned %v", err)
	}
	f.pipeline = p
	t.Cleanup(func() { _ = p.CloseAndFlush() })
	return f
}

func kinds(cfgs []sink.Config) []sink.Kind {
	out := make([]sink.Kind, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.Kind()
	}
	return out
}

func TestBootstrapReadsEnvironment(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{
		EnvRemoteLogURL:       "https://logs.example.com",
		EnvRemoteLogKey:       "abc",
		EnvInstrumentationKey: "ikey",
		EnvEnvironmentName:    "Production",
		EnvHostName:           "web-7",
		EnvComputerName:       "IGNORED",
	})

	want := []sink.Kind{sink.KindConsole, sink.KindRollingFile, sink.KindRemoteLog, sink.KindTelemetry}
	if diff := cmp.Diff(want, kinds(f.rec.opened)); diff != "" {
		t.Fatalf("opened sinks mismatch (-want +got):\n%s", diff)
	}
	if tel, ok := f.rec.opened[3].(sink.Telemetry); !ok || tel.InstrumentationKey != "ikey" || tel.TracerProvider != nil {
		t.Fatalf("telemetry sink = %+v, want key-only", f.rec.opened[3])
	}

	wantOut := "api - 1.4.0\nRemote log sink: https://logs.example.com\n"
	if got := f.stdout.String(); got != wantOut {
		t.Fatalf("stdout = %q, want %q", got, wantOut)
	}

	in := f.pipeline.Inputs()
	if in.HostName != "web-7" || in.EnvironmentName != "Production" {
		t.Fatalf("inputs = %+v", in)
	}
}

func TestBootstrapLevels(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{})
	logger := f.pipeline.Logger()
	logger.Log(context.Background(), LevelVerbose.Level(), "verbose app")
	ForSource(logger, "host.lifetime").Debug("host debug")
	ForSource(logger, "host.lifetime").Info("host info")
	if err := f.pipeline.CloseAndFlush(); err != nil {
		t.Fatalf("CloseAndFlush returned %v", err)
	}

	got := messages(f.rec.ofKind(sink.KindConsole))
	if diff := cmp.Diff([]string{"verbose app", "host info"}, got); diff != "" {
		t.Fatalf("console messages mismatch (-want +got):\n%s", diff)
	}
	for _, e := range f.rec.ofKind(sink.KindConsole) {
		if e.Attrs[ApplicationKey] != "api" || e.Attrs[VersionKey] != "1.4.0" || e.Attrs[HostNameKey] == "" {
			t.Fatalf("event %q missing enrichment: %v", e.Message, e.Attrs)
		}
	}
}

func TestBootstrapHostNameOrder(t *testing.T) {
	t.Parallel()

	get := func(env MapEnvironment) func(string) string {
		return func(k string) string { return env[k] }
	}
	both := MapEnvironment{EnvHostName: "linux-name", EnvComputerName: "WIN-NAME"}
	noOS := func() (string, error) { return "", errors.New("no hostname") }

	if got := hostName(get(both), options{goos: "linux", hostname: noOS}); got != "linux-name" {
		t.Fatalf("linux host name = %q", got)
	}
	if got := hostName(get(both), options{goos: "windows", hostname: noOS}); got != "WIN-NAME" {
		t.Fatalf("windows host name = %q", got)
	}
	if got := hostName(get(MapEnvironment{EnvComputerName: "ONLY"}), options{goos: "linux", hostname: noOS}); got != "ONLY" {
		t.Fatalf("second variable host name = %q", got)
	}
	osName := func() (string, error) { return "from-os", nil }
	if got := hostName(get(MapEnvironment{}), options{goos: "linux", hostname: osName}); got != "from-os" {
		t.Fatalf("fallback host name = %q", got)
	}
}

func TestApplicationNameFromExecutable(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/usr/local/bin/orders":  "orders",
		`C:\apps\Orders.Api.exe`: "Orders.Api",
		"./worker.test":          "worker",
		"":                       defaultApplicationName,
	}
	for arg, want := range cases {
		if got := applicationNameFromExecutable([]string{arg}); got != want {
			t.Errorf("applicationNameFromExecutable(%q) = %q, want %q", arg, got, want)
		}
	}
}

func TestBootstrapRejectsMalformedFlushTimeout(t *testing.T) {
	t.Parallel()

	_, err := Bootstrap(MapEnvironment{EnvFlushTimeout: "soon"},
		WithRegistry(NewRegistry(nil)), WithoutInstall(), WithStdout(nil), WithSinkOpener((&recorder{}).opener()))
	if !errors.Is(err, ErrConfigurationMalformed) {
		t.Fatalf("Bootstrap error = %v, want ErrConfigurationMalformed", err)
	}
}

func TestBootstrapFlushTimeoutPrecedence(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{EnvFlushTimeout: "2s"})
	if got := f.pipeline.Inputs().FlushTimeout; got != 2*time.Second {
		t.Fatalf("env flush timeout = %v, want 2s", got)
	}
	g := bootstrapForTest(t, MapEnvironment{EnvFlushTimeout: "2s"}, WithFlushTimeout(time.Second))
	if got := g.pipeline.Inputs().FlushTimeout; got != time.Second {
		t.Fatalf("option flush timeout = %v, want 1s", got)
	}
}

type staticConfig struct {
	d   Directives
	err error
}

func (s staticConfig) LoggingDirectives() (Directives, error) { return s.d, s.err }

func TestUpgradeRaisesHostThresholdAndRebindsTelemetry(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{EnvInstrumentationKey: "ikey", EnvEnvironmentName: "Production"})
	bootLogger := f.pipeline.Current()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	upgraded, err := f.pipeline.Upgrade(context.Background(), UpgradeInput{
		EnvironmentName: "Development",
		TracerProvider:  tp,
	})
	if err != nil {
		t.Fatalf("Upgrade returned %v", err)
	}
	if f.pipeline.Current() != upgraded || !f.pipeline.Upgraded() {
		t.Fatalf("registry does not hold the upgraded logger")
	}
	if bootLogger.Dropped() != 0 {
		t.Fatalf("bootstrap logger dropped events")
	}

	opened := f.rec.opened[len(f.rec.opened)-4:]
	wantKinds := []sink.Kind{sink.KindConsole, sink.KindRollingFile, sink.KindRemoteLog, sink.KindTelemetry}
	if diff := cmp.Diff(wantKinds, kinds(opened)); diff != "" {
		t.Fatalf("upgraded sinks mismatch (-want +got):\n%s", diff)
	}
	if remote := opened[2].(sink.RemoteLog); remote.URL != DefaultRemoteLogURL {
		t.Fatalf("authoritative Development did not select local remote: %+v", remote)
	}
	if tel := opened[3].(sink.Telemetry); tel.TracerProvider != tp {
		t.Fatalf("telemetry sink not bound to the live provider")
	}

	logger := f.pipeline.Logger()
	ForSource(logger, "host.routing").Info("host info dropped")
	ForSource(logger, "host.routing").Warn("host warn kept")
	if err := f.pipeline.CloseAndFlush(); err != nil {
		t.Fatalf("CloseAndFlush returned %v", err)
	}
	var upgradedConsole []string
	for _, e := range f.rec.ofKind(sink.KindConsole) {
		if strings.HasPrefix(e.Message, "host") {
			upgradedConsole = append(upgradedConsole, e.Message)
		}
	}
	if diff := cmp.Diff([]string{"host warn kept"}, upgradedConsole); diff != "" {
		t.Fatalf("host events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpgradeConfigurationWinsOverBuiltIns(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{})
	minimum := LevelWarning
	_, err := f.pipeline.Upgrade(context.Background(), UpgradeInput{
		Config: staticConfig{d: Directives{
			MinimumLevel: &minimum,
			Overrides:    []LevelOverride{{Source: HostSource, Level: LevelDebug}},
			Properties:   []slog.Attr{slog.String("tenant", "acme")},
		}},
		Properties: []slog.Attr{slog.String(PlatformKey, "kubernetes")},
	})
	if err != nil {
		t.Fatalf("Upgrade returned %v", err)
	}

	logger := f.pipeline.Logger()
	logger.Info("app info dropped")
	logger.Warn("app warn kept")
	ForSource(logger, "host").Debug("host debug kept")
	if err := f.pipeline.CloseAndFlush(); err != nil {
		t.Fatalf("CloseAndFlush returned %v", err)
	}

	events := f.rec.ofKind(sink.KindConsole)
	if diff := cmp.Diff([]string{"app warn kept", "host debug kept"}, messages(events)); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	if events[0].Attrs["tenant"] != "acme" || events[0].Attrs[PlatformKey] != "kubernetes" {
		t.Fatalf("upgrade properties missing: %v", events[0].Attrs)
	}
}

func TestUpgradeFailuresKeepBootstrapLogger(t *testing.T) {
	t.Parallel()

	f := bootstrapForTest(t, MapEnvironment{})
	boot := f.pipeline.Current()

	_, err := f.pipeline.Upgrade(context.Background(), UpgradeInput{
		Config: staticConfig{d: Directives{Sinks: []sink.Config{sink.RollingFile{PathTemplate: "/var/log/app.log"}}}},
	})
	if !errors.Is(err, ErrConfigurationMalformed) {
		t.Fatalf("Upgrade error = %v, want ErrConfigurationMalformed", err)
	}

	readErr := errors.New("config unreadable")
	if _, err := f.pipeline.Upgrade(context.Background(), UpgradeInput{Config: staticConfig{err: readErr}}); !errors.Is(err, readErr) {
		t.Fatalf("Upgrade error = %v, want %v", err, readErr)
	}
	if f.pipeline.Current() != boot {
		t.Fatalf("failed upgrade replaced the bootstrap logger")
	}

	if err := f.pipeline.CloseAndFlush(); err != nil {
		t.Fatalf("CloseAndFlush returned %v", err)
	}
	if _, err := f.pipeline.Upgrade(context.Background(), UpgradeInput{}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("Upgrade after close = %v, want ErrPipelineClosed", err)
	}
}

func TestBootstrapInstallsDefault(t *testing.T) {
	// Mutates slog.Default; not parallel.
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec := &recorder{}
	reg := NewRegistry(nil)
	p, err := Bootstrap(MapEnvironment{},
		WithApplicationName("api"), WithSinkOpener(rec.opener()), WithStdout(nil), WithRegistry(reg), WithLogDirectory(t.TempDir()))
	if err != nil {
		t.Fatalf("Bootstrap returned %v", err)
	}
	slog.Info("through default")
	if err := p.CloseAndFlush(); err != nil {
		t.Fatalf("CloseAndFlush returned %v", err)
	}
	if got := messages(rec.ofKind(sink.KindConsole)); len(got) != 1 || got[0] != "through default" {
		t.Fatalf("console messages = %v", got)
	}
}
