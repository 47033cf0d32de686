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

package slogbootconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pjscruggs/slogboot"
	"github.com/pjscruggs/slogboot/sink"
)

const tomlDoc = `
[server]
addr = ":8080"

[logging]
minimum_level = "debug"

[logging.override]
"host.http" = "error"
"billing" = "verbose"

[logging.properties]
region = "eu-west-1"
shard = 12

[[logging.sinks]]
type = "file"
path = "/var/log/api/audit-{date}.log"
rotation = "1h"
retained_files = 30
shared = true

[[logging.sinks]]
type = "seq"
url = "https://seq.internal:5341"
api_key = "k"
`

const yamlDoc = `
server:
  addr: ":8080"
logging:
  minimum_level: debug
  override:
    host.http: error
    billing: verbose
  properties:
    region: eu-west-1
    shard: 12
  sinks:
    - type: file
      path: /var/log/api/audit-{date}.log
      rotation: 1h
      retained_files: 30
      shared: true
    - type: seq
      url: https://seq.internal:5341
      api_key: k
`

const jsonDoc = `{
  "server": {"addr": ":8080"},
  "logging": {
    "minimum_level": "debug",
    "override": {"host.http": "error", "billing": "verbose"},
    "properties": {"region": "eu-west-1", "shard": 12},
    "sinks": [
      {"type": "file", "path": "/var/log/api/audit-{date}.log", "rotation": "1h", "retained_files": 30, "shared": true},
      {"type": "seq", "url": "https://seq.internal:5341", "api_key": "k"}
    ]
  }
}`

func TestLoadEquivalentFormats(t *testing.T) {
	t.Parallel()

	wantOverrides := []slogboot.LevelOverride{
		{Source: "billing", Level: slogboot.LevelVerbose},
		{Source: "host.http", Level: slogboot.LevelError},
	}
	wantSinks := []sink.Config{
		sink.RollingFile{
			PathTemplate:      "/var/log/api/audit-{date}.log",
			RotationInterval:  time.Hour,
			RetainedFileCount: 30,
			Shared:            true,
		},
		sink.RemoteLog{URL: "https://seq.internal:5341", APIKey: "k"},
	}
	wantProps := map[string]string{"region": "eu-west-1", "shard": "12"}

	for name, body := range map[string]string{
		"logging.toml": tomlDoc,
		"logging.yaml": yamlDoc,
		"logging.yml":  yamlDoc,
		"logging.json": jsonDoc,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load returned %v", err)
			}
			if cfg.Path != path {
				t.Fatalf("Path = %q", cfg.Path)
			}
			d, err := cfg.LoggingDirectives()
			if err != nil {
				t.Fatalf("LoggingDirectives returned %v", err)
			}
			if d.MinimumLevel == nil || *d.MinimumLevel != slogboot.LevelDebug {
				t.Fatalf("MinimumLevel = %v", d.MinimumLevel)
			}
			if diff := cmp.Diff(wantOverrides, d.Overrides); diff != "" {
				t.Errorf("overrides mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(wantSinks, d.Sinks); diff != "" {
				t.Errorf("sinks mismatch (-want +got):\n%s", diff)
			}
			props := map[string]string{}
			for _, a := range d.Properties {
				props[a.Key] = a.Value.String()
			}
			if diff := cmp.Diff(wantProps, props); diff != "" {
				t.Errorf("properties mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logging.ini")
	if err := os.WriteFile(path, []byte("[logging]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Load error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load error = %v, want not-exist", err)
	}
}

func TestParseSyntaxError(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("[logging\n"), FormatTOML); err == nil {
		t.Fatalf("Parse accepted broken TOML")
	}
}

func TestEmptyLoggingSectionYieldsNoDirectives(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("[server]\naddr = \":1\"\n"), FormatTOML)
	if err != nil {
		t.Fatalf("Parse returned %v", err)
	}
	d, err := cfg.LoggingDirectives()
	if err != nil {
		t.Fatalf("LoggingDirectives returned %v", err)
	}
	if d.MinimumLevel != nil || len(d.Overrides) != 0 || len(d.Sinks) != 0 || len(d.Properties) != 0 {
		t.Fatalf("directives = %+v", d)
	}

	var nilCfg *Config
	if _, err := nilCfg.LoggingDirectives(); err != nil {
		t.Fatalf("nil config returned %v", err)
	}
}

func TestMalformedDirectives(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"level":           "[logging]\nminimum_level = \"loud\"\n",
		"override":        "[logging.override]\nhost = \"sometimes\"\n",
		"sink type":       "[[logging.sinks]]\ntype = \"kafka\"\n",
		"no date":         "[[logging.sinks]]\ntype = \"file\"\npath = \"/tmp/app.log\"\n",
		"bad url":         "[[logging.sinks]]\ntype = \"seq\"\nurl = \"seq:5341\"\n",
		"bad rotation":    "[[logging.sinks]]\ntype = \"file\"\npath = \"/tmp/a-{date}.log\"\nrotation = \"daily\"\n",
		"empty telemetry": "[[logging.sinks]]\ntype = \"telemetry\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Parse([]byte(body), FormatTOML)
			if err != nil {
				t.Fatalf("Parse returned %v", err)
			}
			if _, err := cfg.LoggingDirectives(); !errors.Is(err, slogboot.ErrConfigurationMalformed) {
				t.Fatalf("LoggingDirectives error = %v, want ErrConfigurationMalformed", err)
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{
		"a.toml":    FormatTOML,
		"a.YAML":    FormatYAML,
		"dir/a.yml": FormatYAML,
		"a.json":    FormatJSON,
	}
	for path, want := range cases {
		got, err := FormatFor(path)
		if err != nil || got != want {
			t.Errorf("FormatFor(%q) = (%q, %v), want %q", path, got, err, want)
		}
	}
}
