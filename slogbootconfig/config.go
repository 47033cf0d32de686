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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/pjscruggs/slogboot"
	"github.com/pjscruggs/slogboot/sink"
)

// ErrUnsupportedFormat is returned for files whose extension names no known
// format.
var ErrUnsupportedFormat = errors.New("slogbootconfig: unsupported configuration format")

// Format names a configuration encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Sink types accepted in [Sink.Type].
const (
	SinkConsole   = "console"
	SinkFile      = "file"
	SinkSeq       = "seq"
	SinkTelemetry = "telemetry"
)

// Document is the top level of a configuration file.
type Document struct {
	Logging Logging `toml:"logging" yaml:"logging" json:"logging"`
}

// Logging is the "logging" section.
type Logging struct {
	MinimumLevel string            `toml:"minimum_level" yaml:"minimum_level" json:"minimum_level"`
	Override     map[string]string `toml:"override" yaml:"override" json:"override"`
	Properties   map[string]any    `toml:"properties" yaml:"properties" json:"properties"`
	Sinks        []Sink            `toml:"sinks" yaml:"sinks" json:"sinks"`
}

// Sink declares an extra destination opened in addition to the ones the
// environment selects.
type Sink struct {
	Type string `toml:"type" yaml:"type" json:"type"`

	// console
	Format string `toml:"format" yaml:"format" json:"format"`

	// file
	Path          string `toml:"path" yaml:"path" json:"path"`
	Rotation      string `toml:"rotation" yaml:"rotation" json:"rotation"`
	RetainedFiles int    `toml:"retained_files" yaml:"retained_files" json:"retained_files"`
	SizeLimit     int64  `toml:"size_limit_bytes" yaml:"size_limit_bytes" json:"size_limit_bytes"`
	FlushInterval string `toml:"flush_interval" yaml:"flush_interval" json:"flush_interval"`
	Shared        bool   `toml:"shared" yaml:"shared" json:"shared"`

	// seq
	URL    string `toml:"url" yaml:"url" json:"url"`
	APIKey string `toml:"api_key" yaml:"api_key" json:"api_key"`

	// telemetry
	InstrumentationKey string `toml:"instrumentation_key" yaml:"instrumentation_key" json:"instrumentation_key"`
}

// Config is a parsed configuration file.
type Config struct {
	Path     string
	Document Document
}

var _ slogboot.ConfigurationSource = (*Config)(nil)

// FormatFor maps a file extension to its format.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	var doc Document
	switch format {
	case FormatTOML:
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &Config{Document: doc}, nil
}

// LoggingDirectives converts the logging section. Every problem is reported
// as slogboot.ErrConfigurationMalformed.
func (c *Config) LoggingDirectives() (slogboot.Directives, error) {
	var d slogboot.Directives
	if c == nil {
		return d, nil
	}
	l := c.Document.Logging

	if strings.TrimSpace(l.MinimumLevel) != "" {
		lvl, err := slogboot.ParseLevel(l.MinimumLevel)
		if err != nil {
			return d, fmt.Errorf("minimum_level: %w", err)
		}
		d.MinimumLevel = &lvl
	}

	for _, source := range sortedKeys(l.Override) {
		lvl, err := slogboot.ParseLevel(l.Override[source])
		if err != nil {
			return d, fmt.Errorf("override %q: %w", source, err)
		}
		d.Overrides = append(d.Overrides, slogboot.LevelOverride{Source: source, Level: lvl})
	}

	for _, key := range sortedKeys(l.Properties) {
		d.Properties = append(d.Properties, slog.Any(key, l.Properties[key]))
	}

	var errs []error
	for i, s := range l.Sinks {
		cfg, err := s.config()
		if err != nil {
			errs = append(errs, fmt.Errorf("sinks[%d]: %w", i, err))
			continue
		}
		d.Sinks = append(d.Sinks, cfg)
	}
	if err := errors.Join(errs...); err != nil {
		return slogboot.Directives{}, err
	}
	return d, nil
}

// config converts the declaration and validates it without opening anything.
func (s Sink) config() (sink.Config, error) {
	var cfg sink.Config
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case SinkConsole:
		cfg = sink.Console{Format: s.Format}
	case SinkFile:
		rotation, err := duration("rotation", s.Rotation)
		if err != nil {
			return nil, err
		}
		flush, err := duration("flush_interval", s.FlushInterval)
		if err != nil {
			return nil, err
		}
		retained := s.RetainedFiles
		if retained == 0 {
			retained = slogboot.DefaultRetainedFileCount
		}
		cfg = sink.RollingFile{
			PathTemplate:       s.Path,
			RotationInterval:   rotation,
			RetainedFileCount:  retained,
			FileSizeLimitBytes: s.SizeLimit,
			FlushInterval:      flush,
			Shared:             s.Shared,
		}
	case SinkSeq:
		cfg = sink.RemoteLog{URL: s.URL, APIKey: s.APIKey}
	case SinkTelemetry:
		cfg = sink.Telemetry{InstrumentationKey: s.InstrumentationKey}
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", slogboot.ErrConfigurationMalformed, s.Type)
	}
	if err := sink.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func duration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s %q", slogboot.ErrConfigurationMalformed, field, raw)
	}
	return d, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
