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

package slogbootgrpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/pjscruggs/slogboot"
)

// Source is the logger source of completion events.
const Source = slogboot.HostSource + ".grpc"

// CompletedMessage is logged when a call finishes.
const CompletedMessage = "gRPC call finished"

// Property keys bound to every event logged during a call.
const (
	SystemKey      = "rpc.system"
	ServiceKey     = "rpc.service"
	MethodKey      = "rpc.method"
	KindKey        = "rpc.kind"
	PeerKey        = "net.peer.ip"
	StatusCodeKey  = "rpc.grpc.status_code"
	RequestSizeKey = "rpc.request_size"
)

// UnaryServerInterceptor binds call properties for unary RPCs.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		call := newCall(info.FullMethod, "unary")
		ctx = call.bind(ctx, cfg, req)

		resp, err := handler(ctx, req)
		if cfg.includeSizes && err == nil {
			call.respBytes.Add(messageSize(resp))
		}
		call.finish(ctx, cfg, err, time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor binds call properties for streaming RPCs.
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		call := newCall(info.FullMethod, streamKind(info.IsClientStream, info.IsServerStream))
		ctx := call.bind(ss.Context(), cfg, nil)

		err := handler(srv, &serverStream{ServerStream: ss, ctx: ctx, call: call, cfg: cfg})
		call.finish(ctx, cfg, err, time.Since(start))
		return err
	}
}

// UnaryClientInterceptor binds call properties for outgoing unary RPCs.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := applyOptions(opts)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		start := time.Now()
		call := newCall(method, "client_unary")
		ctx = call.bind(ctx, cfg, req)

		err := invoker(ctx, method, req, reply, cc, callOpts...)
		if cfg.includeSizes && err == nil {
			call.respBytes.Add(messageSize(reply))
		}
		call.finish(ctx, cfg, err, time.Since(start))
		return err
	}
}

// StreamClientInterceptor binds call properties for outgoing streams. The
// completion event is written when the stream ends.
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	cfg := applyOptions(opts)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()
		call := newCall(method, "client_"+streamKind(desc.ClientStreams, desc.ServerStreams))
		ctx = call.bind(ctx, cfg, nil)

		cs, err := streamer(ctx, desc, cc, method, callOpts...)
		if err != nil {
			call.finish(ctx, cfg, err, time.Since(start))
			return nil, err
		}
		return &clientStream{ClientStream: cs, ctx: ctx, call: call, cfg: cfg, start: start}, nil
	}
}

// ServerOptions installs the otelgrpc stats handler and the interceptors.
func ServerOptions(opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption
	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}
	return append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(opts...)),
	)
}

// DialOptions installs the otelgrpc stats handler and the client
// interceptors.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption
	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}
	return append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(opts...)),
	)
}

func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
	}
	return opts
}

// call tracks one RPC.
type call struct {
	service   string
	method    string
	kind      string
	logger    *slog.Logger
	reqBytes  atomic.Int64
	respBytes atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
}

func newCall(fullMethod, kind string) *call {
	service, method := splitFullMethod(fullMethod)
	return &call{service: service, method: method, kind: kind}
}

// bind attaches call properties and the logger to ctx.
func (c *call) bind(ctx context.Context, cfg *config, req any) context.Context {
	attrs := []slog.Attr{
		slog.String(SystemKey, "grpc"),
		slog.String(ServiceKey, c.service),
		slog.String(MethodKey, c.method),
		slog.String(KindKey, c.kind),
	}
	if cfg.includePeer {
		if addr, ok := peerAddress(ctx); ok {
			attrs = append(attrs, slog.String(PeerKey, addr))
		}
	}
	if cfg.includeSizes && req != nil {
		size := messageSize(req)
		c.reqBytes.Add(size)
		attrs = append(attrs, slog.Int64(RequestSizeKey, size))
	}
	c.logger = cfg.base()
	ctx = slogboot.WithProperties(ctx, attrs...)
	return slogboot.ContextWithLogger(ctx, c.logger)
}

// finish writes the completion event.
func (c *call) finish(ctx context.Context, cfg *config, err error, elapsed time.Duration) {
	code := status.Code(err)
	attrs := []slog.Attr{
		slog.String(StatusCodeKey, code.String()),
		slog.Duration("rpc.duration", elapsed),
	}
	if cfg.includeSizes {
		attrs = append(attrs, slog.Int64("rpc.response_size", c.respBytes.Load()))
	}
	if n := c.sent.Load(); n > 0 {
		attrs = append(attrs, slog.Int64("rpc.messages_sent", n))
	}
	if n := c.received.Load(); n > 0 {
		attrs = append(attrs, slog.Int64("rpc.messages_received", n))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	slogboot.ForSource(c.logger, Source).LogAttrs(ctx, completionLevel(code), CompletedMessage, attrs...)
}

// completionLevel reports server faults at Error and caller faults at
// Warning.
func completionLevel(code codes.Code) slog.Level {
	switch code {
	case codes.OK:
		return slog.LevelInfo
	case codes.Unknown, codes.Internal, codes.DataLoss, codes.Unavailable,
		codes.DeadlineExceeded, codes.Unimplemented:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type serverStream struct {
	grpc.ServerStream
	ctx  context.Context
	call *call
	cfg  *config
}

func (s *serverStream) Context() context.Context { return s.ctx }

func (s *serverStream) RecvMsg(m any) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil {
		s.call.received.Add(1)
		if s.cfg.includeSizes {
			s.call.reqBytes.Add(messageSize(m))
		}
	}
	return err
}

func (s *serverStream) SendMsg(m any) error {
	err := s.ServerStream.SendMsg(m)
	if err == nil {
		s.call.sent.Add(1)
		if s.cfg.includeSizes {
			s.call.respBytes.Add(messageSize(m))
		}
	}
	return err
}

type clientStream struct {
	grpc.ClientStream
	ctx   context.Context
	call  *call
	cfg   *config
	start time.Time
	done  atomic.Bool
}

func (c *clientStream) Context() context.Context { return c.ctx }

func (c *clientStream) SendMsg(m any) error {
	err := c.ClientStream.SendMsg(m)
	if err == nil {
		c.call.sent.Add(1)
	} else if !errors.Is(err, io.EOF) {
		c.end(err)
	}
	return err
}

func (c *clientStream) RecvMsg(m any) error {
	err := c.ClientStream.RecvMsg(m)
	switch {
	case err == nil:
		c.call.received.Add(1)
		if c.cfg.includeSizes {
			c.call.respBytes.Add(messageSize(m))
		}
	case errors.Is(err, io.EOF):
		c.end(nil)
	default:
		c.end(err)
	}
	return err
}

func (c *clientStream) end(err error) {
	if c.done.CompareAndSwap(false, true) {
		c.call.finish(c.ctx, c.cfg, err, time.Since(c.start))
	}
}

func streamKind(clientStreams, serverStreams bool) string {
	switch {
	case clientStreams && serverStreams:
		return "bidi_stream"
	case clientStreams:
		return "client_stream"
	case serverStreams:
		return "server_stream"
	default:
		return "unary"
	}
}

// splitFullMethod parses "/pkg.Service/Method".
func splitFullMethod(full string) (service, method string) {
	if !strings.HasPrefix(full, "/") {
		return "", strings.TrimSpace(full)
	}
	full = strings.TrimPrefix(full, "/")
	if service, method, ok := strings.Cut(full, "/"); ok {
		return service, method
	}
	return full, ""
}

// messageSize returns the encoded size of a protobuf message.
func messageSize(msg any) int64 {
	if m, ok := msg.(proto.Message); ok {
		return int64(proto.Size(m))
	}
	return 0
}

func peerAddress(ctx context.Context) (string, bool) {
	pr, ok := peer.FromContext(ctx)
	if !ok || pr == nil || pr.Addr == nil {
		return "", false
	}
	addr := pr.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host, true
	}
	return addr, true
}
