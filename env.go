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
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
)

// Environment variables read by Bootstrap.
const (
	EnvRemoteLogURL       = "SEQ_URL"
	EnvRemoteLogKey       = "SEQ_API_KEY"
	EnvInstrumentationKey = "TELEMETRY_INSTRUMENTATION_KEY"
	EnvEnvironmentName    = "APP_ENVIRONMENT"
	EnvHostName           = "HOSTNAME"
	EnvComputerName       = "COMPUTERNAME"
	EnvLogDirectory       = "SLOGBOOT_LOG_DIR"
	EnvFlushTimeout       = "SLOGBOOT_FLUSH_TIMEOUT"
)

const (
	defaultApplicationName = "app"
	defaultVersion         = "0.0.0-dev"
)

// EnvironmentReader supplies environment values.
type EnvironmentReader interface {
	LookupEnv(key string) (string, bool)
}

// EnvironmentFunc adapts a lookup function to EnvironmentReader.
type EnvironmentFunc func(key string) (string, bool)

// LookupEnv implements EnvironmentReader.
func (f EnvironmentFunc) LookupEnv(key string) (string, bool) { return f(key) }

// OSEnvironment reads the process environment.
var OSEnvironment EnvironmentReader = EnvironmentFunc(os.LookupEnv)

// MapEnvironment is a fixed environment, convenient in tests.
type MapEnvironment map[string]string

// LookupEnv implements EnvironmentReader.
func (m MapEnvironment) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Inputs are the values Bootstrap resolved from the environment and options.
type Inputs struct {
	RemoteLogURL       string
	RemoteLogKey       string
	InstrumentationKey string
	EnvironmentName    string
	ApplicationName    string
	HostName           string
	Version            string
	LogDirectory       string
	FlushTimeout       time.Duration
}

// sinkInputs returns the SinkPolicy inputs for environment name env.
func (in Inputs) sinkInputs(env string) SinkInputs {
	return SinkInputs{
		RemoteLogURL:    in.RemoteLogURL,
		RemoteLogKey:    in.RemoteLogKey,
		EnvironmentName: env,
		ApplicationName: in.ApplicationName,
		LogDirectory:    in.LogDirectory,
	}
}

// enrichment returns the eager attributes shared by both stages.
func (in Inputs) enrichment() Enrichment {
	return Enrichment{
		Application: in.ApplicationName,
		HostName:    in.HostName,
		Version:     in.Version,
	}
}

// readInputs resolves every bootstrap input. Options win over the
// environment.
func readInputs(env EnvironmentReader, o options) (Inputs, error) {
	if env == nil {
		env = OSEnvironment
	}
	get := func(key string) string {
		v, _ := env.LookupEnv(key)
		return strings.TrimSpace(v)
	}

	in := Inputs{
		RemoteLogURL:       get(EnvRemoteLogURL),
		RemoteLogKey:       get(EnvRemoteLogKey),
		InstrumentationKey: get(EnvInstrumentationKey),
		EnvironmentName:    get(EnvEnvironmentName),
		LogDirectory:       get(EnvLogDirectory),
		FlushTimeout:       DefaultFlushTimeout,
	}

	if o.applicationName != nil {
		in.ApplicationName = strings.TrimSpace(*o.applicationName)
	}
	if in.ApplicationName == "" {
		in.ApplicationName = applicationNameFromExecutable(os.Args)
	}

	if o.version != nil {
		in.Version = strings.TrimSpace(*o.version)
	}
	if in.Version == "" {
		in.Version = buildVersion()
	}

	in.HostName = hostName(get, o)

	if o.logDirectory != nil {
		in.LogDirectory = strings.TrimSpace(*o.logDirectory)
	}

	if raw := get(EnvFlushTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Inputs{}, fmt.Errorf("%w: %s=%q is not a positive duration", ErrConfigurationMalformed, EnvFlushTimeout, raw)
		}
		in.FlushTimeout = d
	}
	if o.flushTimeout != nil && *o.flushTimeout > 0 {
		in.FlushTimeout = *o.flushTimeout
	}
	return in, nil
}

// hostName reads the machine name variables in platform order and falls
// back to the operating system.
func hostName(get func(string) string, o options) string {
	order := []string{EnvHostName, EnvComputerName}
	if o.goos == "windows" {
		order = []string{EnvComputerName, EnvHostName}
	}
	for _, key := range order {
		if v := get(key); v != "" {
			return v
		}
	}
	if name, err := o.hostname(); err == nil {
		return strings.TrimSpace(name)
	}
	return ""
}

// applicationNameFromExecutable returns the base name of the running binary
// without its extension.
func applicationNameFromExecutable(args []string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return defaultApplicationName
	}
	base := filepath.Base(args[0])
	if i := strings.LastIndexByte(base, '\\'); i >= 0 {
		base = base[i+1:]
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		return defaultApplicationName
	}
	return name
}

// buildVersion reports the main module version recorded by the toolchain.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return defaultVersion
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return defaultVersion
}
