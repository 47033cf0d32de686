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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// RemoteBatchPeriod is how often buffered events are shipped.
	RemoteBatchPeriod = 2 * time.Second
	// remoteBatchBytes ships early once this much is buffered.
	remoteBatchBytes = 512 << 10
	// remoteBacklogBytes bounds what is retained while the server is down.
	remoteBacklogBytes = 8 << 20
	// remoteAPIKeyHeader carries RemoteLog.APIKey.
	remoteAPIKeyHeader = "X-Seq-ApiKey"
	clefContentType    = "application/vnd.serilog.clef"
)

// endpoint validates the URL and returns the raw ingestion endpoint.
func (c RemoteLog) endpoint() (string, error) {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return "", fmt.Errorf("%w: remote log URL is empty", ErrMalformed)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: remote log URL %q: %v", ErrMalformed, c.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: remote log URL %q must be an absolute http(s) URL", ErrMalformed, c.URL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/events/raw"
	u.RawQuery = "clef"
	return u.String(), nil
}

func openRemoteLog(c RemoteLog, env Env) (Handler, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	w := newRemoteWriter(endpoint, strings.TrimSpace(c.APIKey), env)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       acceptAll,
		ReplaceAttr: clefReplacer(env.LevelName),
	})
	return closingHandler{Handler: h, close: w.Close, closeCtx: w.CloseContext}, nil
}

// clefReplacer maps the stdlib JSON layout onto the compact log event format.
func clefReplacer(name func(slog.Level) string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String("@t", t.UTC().Format(time.RFC3339Nano))
			}
			a.Key = "@t"
		case slog.MessageKey:
			a.Key = "@m"
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				return slog.String("@l", clefLevel(name(lvl)))
			}
			a.Key = "@l"
		case "error":
			if err, ok := a.Value.Any().(error); ok {
				return slog.String("@x", err.Error())
			}
		}
		return a
	}
}

// clefLevel title-cases a level name and drops any numeric offset.
func clefLevel(name string) string {
	base, _, _ := strings.Cut(name, "+")
	base, _, _ = strings.Cut(base, "-")
	if base == "" {
		return name
	}
	return strings.ToUpper(base[:1]) + strings.ToLower(base[1:])
}

// remoteWriter accumulates newline-delimited events and posts them in
// batches from a single goroutine. Failed batches are retained up to
// remoteBacklogBytes and retried on the next tick.
type remoteWriter struct {
	endpoint string
	apiKey   string
	env      Env

	mu      sync.Mutex
	buf     bytes.Buffer
	dropped int
	failing bool
	closed  bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	loopCtx  context.Context
	abort    context.CancelFunc
	once     sync.Once
	closeErr error
}

func newRemoteWriter(endpoint, apiKey string, env Env) *remoteWriter {
	w := &remoteWriter{
		endpoint: endpoint,
		apiKey:   apiKey,
		env:      env,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.loopCtx, w.abort = context.WithCancel(context.Background())
	go w.loop()
	return w
}

// Write implements io.Writer.
func (w *remoteWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed || w.buf.Len()+len(p) > remoteBacklogBytes {
		w.dropped++
		w.mu.Unlock()
		return len(p), nil
	}
	w.buf.Write(p)
	full := w.buf.Len() >= remoteBatchBytes
	w.mu.Unlock()
	if full {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (w *remoteWriter) loop() {
	defer close(w.done)
	ticker := time.NewTicker(RemoteBatchPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-w.wake:
		case <-w.stop:
			return
		}
		ctx, cancel := context.WithTimeout(w.loopCtx, w.timeout())
		_ = w.ship(ctx)
		cancel()
	}
}

func (w *remoteWriter) timeout() time.Duration {
	if w.env.HTTPClient != nil && w.env.HTTPClient.Timeout > 0 {
		return w.env.HTTPClient.Timeout
	}
	return 10 * time.Second
}

// ship posts the buffered batch. On failure the batch is put back in front of
// anything written meanwhile.
func (w *remoteWriter) ship(ctx context.Context) error {
	w.mu.Lock()
	if w.buf.Len() == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := bytes.Clone(w.buf.Bytes())
	w.buf.Reset()
	w.mu.Unlock()

	err := w.post(ctx, batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		rest := w.buf.Bytes()
		if len(batch)+len(rest) <= remoteBacklogBytes {
			merged := append(batch, rest...)
			w.buf.Reset()
			w.buf.Write(merged)
		} else {
			w.dropped += bytes.Count(batch, []byte{'\n'})
		}
		if !w.failing {
			w.failing = true
			w.env.warnf("remote log %s unreachable, retaining events: %v", w.endpoint, err)
		}
		return err
	}
	if w.failing {
		w.failing = false
		w.env.warnf("remote log %s reachable again", w.endpoint)
	}
	if w.dropped > 0 {
		w.env.warnf("remote log %s dropped %d events", w.endpoint, w.dropped)
		w.dropped = 0
	}
	return nil
}

func (w *remoteWriter) post(ctx context.Context, batch []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(batch))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", clefContentType)
	if w.apiKey != "" {
		req.Header.Set(remoteAPIKeyHeader, w.apiKey)
	}
	resp, err := w.env.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote log status %s", resp.Status)
	}
	return nil
}

// Close stops the batching goroutine and performs a final ship bounded by
// the flush timeout.
func (w *remoteWriter) Close() error {
	return w.CloseContext(context.Background())
}

// CloseContext is Close with the final ship also bounded by ctx. A post in
// flight on the batching goroutine is abandoned and its batch joins the
// final ship.
func (w *remoteWriter) CloseContext(ctx context.Context) error {
	w.once.Do(func() {
		close(w.stop)
		w.abort()
		<-w.done
		ctx, cancel := context.WithTimeout(ctx, w.env.FlushTimeout)
		defer cancel()
		err := w.ship(ctx)
		w.mu.Lock()
		w.closed = true
		pending := w.buf.Len()
		w.buf.Reset()
		w.mu.Unlock()
		if err != nil {
			w.closeErr = fmt.Errorf("remote log final flush: %w", err)
		}
		if pending > 0 && w.closeErr == nil {
			w.closeErr = errors.New("remote log final flush left events unsent")
		}
	})
	return w.closeErr
}
