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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// seqServer records CLEF events posted to it.
type seqServer struct {
	mu      sync.Mutex
	events  []map[string]any
	keys    []string
	paths   []string
	failing atomic.Bool
}

func (s *seqServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.failing.Load() {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, r.Header.Get(remoteAPIKeyHeader))
	s.paths = append(s.paths, r.URL.Path+"?"+r.URL.RawQuery)
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err == nil {
			s.events = append(s.events, m)
		}
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *seqServer) snapshot() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.events...)
}

func TestRemoteLogShipsCLEFOnClose(t *testing.T) {
	t.Parallel()

	srv := &seqServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	h, err := Open(RemoteLog{URL: ts.URL + "/", APIKey: "abc"}, Env{
		LevelName:   func(l slog.Level) string { return strings.ToUpper(l.String()) },
		ErrorWriter: &lockedBuffer{},
	})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	logger := slog.New(h)
	logger.Warn("disk low", slog.Int("free_mb", 12))
	logger.Error("write failed", slog.Any("error", errors.New("EIO")))
	if err := h.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}

	events := srv.snapshot()
	if len(events) != 2 {
		t.Fatalf("server received %d events, want 2", len(events))
	}
	if events[0]["@m"] != "disk low" || events[0]["@l"] != "Warn" || events[0]["free_mb"] != float64(12) {
		t.Fatalf("first event = %v", events[0])
	}
	if _, ok := events[0]["@t"].(string); !ok {
		t.Fatalf("first event lacks @t: %v", events[0])
	}
	if events[1]["@x"] != "EIO" || events[1]["@l"] != "Error" {
		t.Fatalf("second event = %v", events[1])
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if diff := cmp.Diff([]string{"abc"}, srv.keys); diff != "" {
		t.Fatalf("api keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/api/events/raw?clef"}, srv.paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteLogRetainsBacklogWhileServerDown(t *testing.T) {
	t.Parallel()

	srv := &seqServer{}
	srv.failing.Store(true)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	errOut := &lockedBuffer{}
	endpoint, err := RemoteLog{URL: ts.URL}.endpoint()
	if err != nil {
		t.Fatalf("endpoint returned %v", err)
	}
	w := newRemoteWriter(endpoint, "", Env{ErrorWriter: errOut}.withDefaults())

	_, _ = w.Write([]byte("{\"@m\":\"one\"}\n"))
	if err := w.ship(t.Context()); err == nil {
		t.Fatalf("ship succeeded against a failing server")
	}
	_, _ = w.Write([]byte("{\"@m\":\"two\"}\n"))

	srv.failing.Store(false)
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}

	var got []string
	for _, e := range srv.snapshot() {
		got = append(got, e["@m"].(string))
	}
	if diff := cmp.Diff([]string{"one", "two"}, got); diff != "" {
		t.Fatalf("delivered mismatch (-want +got):\n%s", diff)
	}
	out := errOut.String()
	if !strings.Contains(out, "unreachable") || !strings.Contains(out, "reachable again") {
		t.Fatalf("diagnostics = %q", out)
	}
}

func TestRemoteLogWriteNeverBlocksOnServer(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()
	defer close(release)

	h, err := Open(RemoteLog{URL: ts.URL}, Env{ErrorWriter: &lockedBuffer{}, FlushTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			slog.New(h).Info("event")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("emission blocked on a stalled server")
	}
	if err := h.Close(); err == nil {
		t.Fatalf("Close returned nil although the final flush timed out")
	}
}

func TestRemoteLogCloseContextStopsAtDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()
	defer close(release)

	h, err := Open(RemoteLog{URL: ts.URL}, Env{ErrorWriter: &lockedBuffer{}, FlushTimeout: time.Minute})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	slog.New(h).Info("event")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	started := time.Now()
	if err := CloseContext(ctx, h); err == nil {
		t.Fatalf("CloseContext returned nil although the server never answered")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("CloseContext took %v, want it bounded by ctx", elapsed)
	}
}

func TestRemoteLogEndpointValidation(t *testing.T) {
	t.Parallel()

	good := map[string]string{
		"http://localhost:5341":         "http://localhost:5341/api/events/raw?clef",
		"https://seq.example.com/base/": "https://seq.example.com/base/api/events/raw?clef",
	}
	for raw, want := range good {
		got, err := RemoteLog{URL: raw}.endpoint()
		if err != nil || got != want {
			t.Errorf("endpoint(%q) = (%q, %v), want %q", raw, got, err, want)
		}
	}
	for _, raw := range []string{"", "localhost:5341", "ftp://seq", "http://[::1", "https://"} {
		if _, err := (RemoteLog{URL: raw}).endpoint(); !errors.Is(err, ErrMalformed) {
			t.Errorf("endpoint(%q) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestCLEFLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"INFORMATION": "Information",
		"WARNING+2":   "Warning",
		"DEBUG-2":     "Debug",
		"FATAL":       "Fatal",
		"":            "",
	}
	for in, want := range cases {
		if got := clefLevel(in); got != want {
			t.Errorf("clefLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
