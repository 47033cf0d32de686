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

// Package slogbootconfig reads logging directives from a configuration file
// and hands them to [slogboot.Pipeline.Upgrade] as a
// [slogboot.ConfigurationSource].
//
// The file format is chosen by extension: .toml, .yaml or .yml, and .json.
// Only the "logging" section is interpreted; other sections are ignored so
// the same file can carry the rest of the application's settings.
//
//	[logging]
//	minimum_level = "debug"
//
//	[logging.override]
//	"host.http" = "error"
//
//	[logging.properties]
//	region = "eu-west-1"
//
//	[[logging.sinks]]
//	type = "file"
//	path = "/var/log/api/audit-{date}.log"
//	retained_files = 30
package slogbootconfig
