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

package slogboothttp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pjscruggs/slogboot"
)

const instrumentationName = "github.com/pjscruggs/slogboot/slogboothttp"

// DefaultRequestIDHeader carries the request ID in and out.
const DefaultRequestIDHeader = "X-Request-Id"

// Source is the logger source of completion events.
const Source = slogboot.HostSource + ".http"

// Property keys bound to every event logged while serving a request.
const (
	RequestIDKey     = "request_id"
	MethodKey        = "http.method"
	TargetKey        = "http.target"
	QueryKey         = "http.query"
	ClientAddressKey = "client.address"
)

// CompletedMessage is logged when a request finishes.
const CompletedMessage = "HTTP request finished"

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by Middleware.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// Middleware returns an http.Handler middleware that binds request properties
// to the context of every request.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := applyOptions(opts)
	if cfg.enableOTel && cfg.propagators == nil {
		slogboot.EnsurePropagation()
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return wrapWithOTel(cfg, loggingHandler(cfg, next))
	}
}

// loggingHandler binds properties and logs completion around next.
func loggingHandler(cfg *config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := strings.TrimSpace(r.Header.Get(cfg.requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(cfg.requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = slogboot.WithProperties(ctx, requestAttrs(cfg, r, id)...)
		logger := cfg.base()
		ctx = slogboot.ContextWithLogger(ctx, logger)
		r = r.WithContext(ctx)

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.Int("http.status_code", rec.Status()),
			slog.Int64("http.response_size", rec.bytesWritten),
			slog.Duration("http.latency", time.Since(start)),
		}
		if cfg.routeGetter != nil {
			if route := strings.TrimSpace(cfg.routeGetter(r)); route != "" {
				attrs = append(attrs, slog.String("http.route", route))
			}
		}
		slogboot.ForSource(logger, Source).LogAttrs(ctx, completionLevel(rec.Status()), CompletedMessage, attrs...)
	})
}

func requestAttrs(cfg *config, r *http.Request, id string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(RequestIDKey, id),
		slog.String(MethodKey, r.Method),
	}
	if r.URL != nil {
		attrs = append(attrs, slog.String(TargetKey, r.URL.Path))
		if cfg.includeQuery && r.URL.RawQuery != "" {
			attrs = append(attrs, slog.String(QueryKey, r.URL.RawQuery))
		}
	}
	if ip := extractIP(r.RemoteAddr); ip != "" {
		attrs = append(attrs, slog.String(ClientAddressKey, ip))
	}
	for _, enrich := range cfg.attrEnrichers {
		attrs = append(attrs, enrich(r)...)
	}
	return attrs
}

// completionLevel reports server failures at Error and client errors at
// Warning.
func completionLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
	}
	if cfg.publicEndpoint {
		otelOpts = append(otelOpts, otelhttp.WithPublicEndpoint())
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOpts...)
}

// extractIP strips the port from a RemoteAddr.
func extractIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type responseRecorder struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

// WriteHeader records the first status code.
func (rr *responseRecorder) WriteHeader(status int) {
	if rr.status == 0 {
		rr.status = status
	}
	rr.ResponseWriter.WriteHeader(status)
}

// Write counts body bytes.
func (rr *responseRecorder) Write(p []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(p)
	rr.bytesWritten += int64(n)
	if err != nil {
		return n, fmt.Errorf("write response body: %w", err)
	}
	return n, nil
}

// ReadFrom streams src while counting bytes.
func (rr *responseRecorder) ReadFrom(src io.Reader) (int64, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := io.Copy(rr.ResponseWriter, src)
	rr.bytesWritten += n
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}
	return n, nil
}

// Status returns the status written to the client.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// Unwrap exposes the underlying ResponseWriter for http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// Flush forwards to the wrapped writer when supported.
func (rr *responseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack delegates to the wrapped Hijacker when supported.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rr.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := hijacker.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, rw, nil
	}
	return nil, nil, http.ErrNotSupported
}
