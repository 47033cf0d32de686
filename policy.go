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
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pjscruggs/slogboot/sink"
)

const (
	// DefaultRemoteLogURL is the local log server used in Development when
	// no URL is configured.
	DefaultRemoteLogURL = "http://localhost:5341"
	// DevelopmentEnvironment enables DefaultRemoteLogURL. Compared
	// case-insensitively.
	DevelopmentEnvironment = "Development"

	// DefaultRetainedFileCount is how many rolled files are kept.
	DefaultRetainedFileCount = 7
	// DefaultFileSizeLimitBytes triggers a supplemental rotation within a day.
	DefaultFileSizeLimitBytes = 1 << 30
	// DefaultFileFlushInterval is how often the file sink reaches disk.
	DefaultFileFlushInterval = time.Second
	// DefaultRotationInterval is the file period boundary.
	DefaultRotationInterval = 24 * time.Hour
)

// SinkInputs are the raw values SinkPolicy decides from.
type SinkInputs struct {
	RemoteLogURL    string
	RemoteLogKey    string
	EnvironmentName string
	ApplicationName string
	// LogDirectory overrides the platform default directory for the file sink.
	LogDirectory string
}

// SinkResolution is the outcome of [ResolveSinks].
type SinkResolution struct {
	// Sinks lists Console, RollingFile and optionally RemoteLog, in that order.
	Sinks []sink.Config
	// RemoteSelected reports whether a RemoteLog sink is present.
	RemoteSelected bool
	// RemoteTarget is the RemoteLog URL when RemoteSelected.
	RemoteTarget string
	// RemoteDefaulted reports that RemoteTarget is DefaultRemoteLogURL chosen
	// because the environment is Development.
	RemoteDefaulted bool
}

// Announcement renders the operator-facing line describing the remote sink
// decision.
func (r SinkResolution) Announcement() string {
	switch {
	case !r.RemoteSelected:
		return "Remote log sink: disabled"
	case r.RemoteDefaulted:
		return "Remote log sink: " + r.RemoteTarget + " (development default)"
	default:
		return "Remote log sink: " + r.RemoteTarget
	}
}

// ResolveSinks decides which sinks are active for the given inputs. It reads
// nothing from the process and returns equal results for equal inputs.
//
// Console and RollingFile are always present. A RemoteLog sink is added for
// a non-empty RemoteLogURL, or pointing at DefaultRemoteLogURL without a key
// when the environment is Development.
func ResolveSinks(in SinkInputs) SinkResolution {
	res := SinkResolution{
		Sinks: []sink.Config{
			sink.Console{Format: sink.FormatAuto},
			rollingFileFor(in.ApplicationName, in.LogDirectory),
		},
	}

	remoteURL := strings.TrimSpace(in.RemoteLogURL)
	switch {
	case remoteURL != "":
		res.Sinks = append(res.Sinks, sink.RemoteLog{URL: remoteURL, APIKey: strings.TrimSpace(in.RemoteLogKey)})
		res.RemoteSelected = true
		res.RemoteTarget = remoteURL
	case strings.EqualFold(strings.TrimSpace(in.EnvironmentName), DevelopmentEnvironment):
		res.Sinks = append(res.Sinks, sink.RemoteLog{URL: DefaultRemoteLogURL})
		res.RemoteSelected = true
		res.RemoteTarget = DefaultRemoteLogURL
		res.RemoteDefaulted = true
	}
	return res
}

// DefaultLogDirectory returns the platform directory for rolling files.
func DefaultLogDirectory() string {
	return defaultLogDirectoryFor(runtime.GOOS)
}

func defaultLogDirectoryFor(goos string) string {
	if goos == "windows" {
		return `D:\home\LogFiles`
	}
	return "/home/LogFiles"
}

// rollingFileFor builds the file sink for app under dir.
func rollingFileFor(app, dir string) sink.RollingFile {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultLogDirectory()
	}
	app = strings.TrimSpace(app)
	if app == "" {
		app = defaultApplicationName
	}
	return sink.RollingFile{
		PathTemplate:       filepath.Join(dir, app+"-"+sink.DatePlaceholder+".log"),
		RotationInterval:   DefaultRotationInterval,
		RetainedFileCount:  DefaultRetainedFileCount,
		FileSizeLimitBytes: DefaultFileSizeLimitBytes,
		FlushInterval:      DefaultFileFlushInterval,
		Shared:             true,
	}
}
