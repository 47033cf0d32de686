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
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleFormats(t *testing.T) {
	t.Parallel()

	var jsonOut bytes.Buffer
	h, err := Open(Console{}, Env{Stdout: &jsonOut, LevelName: upperLevel})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	slog.New(h).Debug("auto", slog.String("k", "v"))
	var entry map[string]any
	if err := json.Unmarshal(jsonOut.Bytes(), &entry); err != nil {
		t.Fatalf("auto format on a buffer is not JSON: %v (%q)", err, jsonOut.String())
	}
	if entry["level"] != "DEBUG" || entry["msg"] != "auto" || entry["k"] != "v" {
		t.Fatalf("entry = %v", entry)
	}

	var textOut bytes.Buffer
	h, err = Open(&Console{Format: "Text"}, Env{Stdout: &textOut})
	if err != nil {
		t.Fatalf("Open returned %v", err)
	}
	slog.New(h).Info("plain")
	if !strings.Contains(textOut.String(), "msg=plain") {
		t.Fatalf("text output = %q", textOut.String())
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
}

func TestConsoleRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := Open(Console{Format: "xml"}, Env{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Open error = %v, want ErrMalformed", err)
	}
	if err := Validate(Console{Format: FormatJSON}); err != nil {
		t.Fatalf("Validate returned %v", err)
	}
}

func TestOpenRejectsNilAndForeignConfigs(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil, Env{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Open(nil) error = %v", err)
	}
	if err := Validate(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Validate(nil) error = %v", err)
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	for kind, want := range map[Kind]string{
		KindConsole:     "console",
		KindRollingFile: "file",
		KindRemoteLog:   "remote",
		KindTelemetry:   "telemetry",
		Kind(42):        "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(kind), got, want)
		}
	}
}
