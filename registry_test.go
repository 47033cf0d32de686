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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pjscruggs/slogboot/sink"
)

// TestRegistrySwapLosesNothing emits from many goroutines while the logger is
// swapped and checks every event reached exactly one sink set, and that none
// emitted after the swap reached the old one.
func TestRegistrySwapLosesNothing(t *testing.T) {
	t.Parallel()

	const emitters = 16
	const perEmitter = 200

	oldRec, newRec := &recorder{}, &recorder{}
	oldLogger, err := Build(BuildOptions{Sinks: []sink.Config{sink.Console{}}, Open: oldRec.opener(), QueueSize: 8})
	if err != nil {
		t.Fatalf("Build(old) returned %v", err)
	}
	newLogger, err := Build(BuildOptions{Sinks: []sink.Config{sink.Console{}}, Open: newRec.opener(), QueueSize: 8})
	if err != nil {
		t.Fatalf("Build(new) returned %v", err)
	}

	reg := NewRegistry(oldLogger)
	logger := reg.Logger().With(slog.String("component", "test"))

	var swapped atomic.Bool
	var afterSwap sync.Map
	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < emitters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < perEmitter; i++ {
				msg := fmt.Sprintf("%d-%d", g, i)
				emittedAfterSwap := swapped.Load()
				logger.Info(msg)
				if emittedAfterSwap {
					afterSwap.Store(msg, true)
				}
			}
		}(g)
	}

	close(start)
	prev := reg.Swap(newLogger)
	swapped.Store(true)
	if err := prev.Close(); err != nil {
		t.Fatalf("closing previous logger returned %v", err)
	}
	wg.Wait()
	if err := reg.Current().Close(); err != nil {
		t.Fatalf("closing current logger returned %v", err)
	}

	seen := make(map[string]int)
	for _, e := range oldRec.snapshot() {
		seen[e.Message]++
		if _, late := afterSwap.Load(e.Message); late {
			t.Errorf("event %s emitted after swap reached the old logger", e.Message)
		}
		if e.Attrs["component"] != "test" {
			t.Errorf("old logger event %s lost derived attrs: %v", e.Message, e.Attrs)
		}
	}
	for _, e := range newRec.snapshot() {
		seen[e.Message]++
		if e.Attrs["component"] != "test" {
			t.Errorf("new logger event %s lost derived attrs: %v", e.Message, e.Attrs)
		}
	}

	if got, want := len(seen), emitters*perEmitter; got != want {
		t.Fatalf("delivered %d distinct events, want %d", got, want)
	}
	for msg, n := range seen {
		if n != 1 {
			t.Fatalf("event %s delivered %d times, want 1", msg, n)
		}
	}
	if d := oldLogger.Dropped() + newLogger.Dropped(); d != 0 {
		t.Fatalf("dropped %d events, want 0", d)
	}
}

func TestRegistryNeverReturnsNil(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	if reg.Current() == nil {
		t.Fatalf("Current() = nil for a fresh registry")
	}
	prev := reg.Swap(nil)
	if prev == nil || reg.Current() == nil {
		t.Fatalf("Swap(nil) left a nil logger")
	}
	if !reg.Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("fallback logger disabled Information")
	}
}

func TestRegistryReplaysGroups(t *testing.T) {
	t.Parallel()

	first, second := &recorder{}, &recorder{}
	l1, _ := Build(BuildOptions{Sinks: []sink.Config{sink.Console{}}, Open: first.opener()})
	l2, _ := Build(BuildOptions{Sinks: []sink.Config{sink.Console{}}, Open: second.opener()})

	reg := NewRegistry(l1)
	logger := reg.Logger().WithGroup("req").With(slog.String("id", "7"))

	logger.Info("one")
	_ = reg.Swap(l2).Close()
	logger.Info("two")
	_ = l2.Close()

	for name, rec := range map[string]*recorder{"first": first, "second": second} {
		events := rec.snapshot()
		if len(events) != 1 {
			t.Fatalf("%s received %d events, want 1", name, len(events))
		}
		if got := events[0].Attrs["req.id"]; got != "7" {
			t.Fatalf("%s req.id = %q, want 7 (attrs %v)", name, got, events[0].Attrs)
		}
	}
}
