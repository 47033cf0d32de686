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

package slogboot_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pjscruggs/slogboot"
)

// TestLoggerFromContext verifies ContextWithLogger and FromContext round trip and
// fall back to slog.Default.
func TestLoggerFromContext(t *testing.T) {
	defaultLogger := slog.Default()
	if got := slogboot.FromContext(context.Background()); got != defaultLogger {
		t.Fatalf("FromContext(context.Background()) = %v, want default logger %v", got, defaultLogger)
	}

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := slogboot.ContextWithLogger(context.Background(), custom)
	if got := slogboot.FromContext(ctx); got != custom {
		t.Fatalf("FromContext(ctx) = %v, want %v", got, custom)
	}

	ctx = slogboot.ContextWithLogger(ctx, nil)
	if got := slogboot.FromContext(ctx); got != custom {
		t.Fatalf("ContextWithLogger(ctx, nil) replaced the stored logger")
	}
}

// TestWithPropertiesAccumulates verifies properties stack across contexts and
// later keys replace earlier ones without touching the parent.
func TestWithPropertiesAccumulates(t *testing.T) {
	t.Parallel()

	parent := slogboot.WithProperties(context.Background(),
		slog.String("request_id", "r-1"),
		slog.String("path", "/a"),
	)
	child := slogboot.WithProperties(parent, slog.String("path", "/b"), slog.Int("attempt", 2))

	toMap := func(attrs []slog.Attr) map[string]string {
		m := make(map[string]string, len(attrs))
		for _, a := range attrs {
			m[a.Key] = a.Value.String()
		}
		return m
	}

	wantParent := map[string]string{"request_id": "r-1", "path": "/a"}
	if diff := cmp.Diff(wantParent, toMap(slogboot.PropertiesFromContext(parent))); diff != "" {
		t.Fatalf("parent properties mismatch (-want +got):\n%s", diff)
	}
	wantChild := map[string]string{"request_id": "r-1", "path": "/b", "attempt": "2"}
	if diff := cmp.Diff(wantChild, toMap(slogboot.PropertiesFromContext(child))); diff != "" {
		t.Fatalf("child properties mismatch (-want +got):\n%s", diff)
	}

	if got := slogboot.PropertiesFromContext(context.Background()); got != nil {
		t.Fatalf("PropertiesFromContext(background) = %v, want nil", got)
	}
	if got := slogboot.WithProperties(parent); got != parent {
		t.Fatalf("WithProperties without attrs returned a new context")
	}
}
