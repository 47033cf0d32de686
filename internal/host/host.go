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

// Package host is the demonstration service supervised by cmd/slogbootd. It
// serves an HTTP API through chi and the gRPC health service, and upgrades
// the logging pipeline once its configuration and tracer provider exist.
// Spans are exported only when Config.TraceWriter or a span processor is
// set; the provider itself is shut down by the supervisor after the final
// log flush.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pjscruggs/slogboot"
	"github.com/pjscruggs/slogboot/slogbootconfig"
	"github.com/pjscruggs/slogboot/slogbootgrpc"
	"github.com/pjscruggs/slogboot/slogboothttp"
	"github.com/pjscruggs/slogboot/supervisor"
)

// ServiceName is registered with the gRPC health service.
const ServiceName = "slogbootd"

// DefaultShutdownTimeout bounds graceful shutdown of both servers.
const DefaultShutdownTimeout = 10 * time.Second

// Config holds the host's own settings.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	ConfigPath      string
	Environment     string
	ShutdownTimeout time.Duration

	// TraceWriter receives finished spans, log events included, as JSON.
	// Nil exports nothing.
	TraceWriter io.Writer
	// SpanProcessors are registered on the tracer provider in addition to
	// the TraceWriter exporter.
	SpanProcessors []sdktrace.SpanProcessor

	// DetectRuntime reports platform properties. Defaults to
	// slogboot.DetectRuntimeInfo over the process environment.
	DetectRuntime func(context.Context) slogboot.RuntimeInfo
}

// Host implements supervisor.Host.
type Host struct {
	cfg    Config
	logger *slog.Logger

	tp      *sdktrace.TracerProvider
	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server
	httpLis net.Listener
	grpcLis net.Listener
}

var (
	_ supervisor.Host       = (*Host)(nil)
	_ supervisor.Shutdowner = (*Host)(nil)
)

// New returns an unbuilt host.
func New(cfg Config) *Host {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.DetectRuntime == nil {
		cfg.DetectRuntime = func(ctx context.Context) slogboot.RuntimeInfo {
			return slogboot.DetectRuntimeInfo(ctx, slogboot.OSEnvironment)
		}
	}
	return &Host{cfg: cfg}
}

// Build loads configuration, creates the tracer provider, upgrades logging
// and binds both listeners.
func (h *Host) Build(ctx context.Context, upgrade supervisor.UpgradeFunc) error {
	h.logger = slogboot.ForSource(slog.Default(), slogboot.HostSource)
	var source slogboot.ConfigurationSource
	if path := strings.TrimSpace(h.cfg.ConfigPath); path != "" {
		cfg, err := slogbootconfig.Load(path)
		if err != nil {
			return err
		}
		source = cfg
	}

	tp, err := h.tracerProvider()
	if err != nil {
		return err
	}
	h.tp = tp
	info := h.cfg.DetectRuntime(ctx)
	if err := upgrade(ctx, slogboot.UpgradeInput{
		EnvironmentName: h.cfg.Environment,
		Config:          source,
		TracerProvider:  h.tp,
		Properties:      info.Attrs(),
	}); err != nil {
		return fmt.Errorf("upgrade logging: %w", err)
	}

	if h.httpLis, err = net.Listen("tcp", h.cfg.HTTPAddr); err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	if h.grpcLis, err = net.Listen("tcp", h.cfg.GRPCAddr); err != nil {
		_ = h.httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}

	h.httpSrv = &http.Server{
		Handler:           h.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.grpcSrv = grpc.NewServer(slogbootgrpc.ServerOptions(slogbootgrpc.WithTracerProvider(h.tp))...)
	h.health = health.NewServer()
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(h.grpcSrv, h.health)

	h.logger.DebugContext(ctx, "host built",
		slog.String("http_addr", h.httpLis.Addr().String()),
		slog.String("grpc_addr", h.grpcLis.Addr().String()),
	)
	return nil
}

// tracerProvider builds the live telemetry client handed to upgrade.
func (h *Host) tracerProvider() (*sdktrace.TracerProvider, error) {
	var opts []sdktrace.TracerProviderOption
	if h.cfg.TraceWriter != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(h.cfg.TraceWriter))
		if err != nil {
			return nil, fmt.Errorf("create span exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	for _, sp := range h.cfg.SpanProcessors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func (h *Host) router() http.Handler {
	r := chi.NewRouter()
	r.Use(slogboothttp.Middleware(
		slogboothttp.WithTracerProvider(h.tp),
		slogboothttp.WithRouteGetter(routePattern),
	))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	r.Get("/hello/{name}", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		name := chi.URLParam(req, "name")
		slogboot.FromContext(ctx).InfoContext(ctx, "greeting", slog.String("name", name))
		_, _ = fmt.Fprintf(w, "hello, %s\n", name)
	})
	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// HTTPAddr returns the bound HTTP address once Build has succeeded.
func (h *Host) HTTPAddr() string {
	if h.httpLis == nil {
		return ""
	}
	return h.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address once Build has succeeded.
func (h *Host) GRPCAddr() string {
	if h.grpcLis == nil {
		return ""
	}
	return h.grpcLis.Addr().String()
}

// Run serves until ctx is done or a server fails, then shuts both down.
func (h *Host) Run(ctx context.Context) error {
	if h.httpSrv == nil || h.grpcSrv == nil {
		return errors.New("host: Run called before Build")
	}
	errs := make(chan error, 2)
	go func() {
		if err := h.httpSrv.Serve(h.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := h.grpcSrv.Serve(h.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	if err := h.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (h *Host) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
	defer cancel()

	h.health.Shutdown()
	var errs []error
	if err := h.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	stopped := make(chan struct{})
	go func() {
		h.grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		h.grpcSrv.Stop()
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the tracer provider. The supervisor calls it
// after the logging pipeline, whose telemetry sink writes through the
// provider, has been flushed.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ShutdownTimeout)
	defer cancel()
	if err := h.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
