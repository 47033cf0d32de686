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

// Package sink defines the destinations a slogboot pipeline can write to and
// opens slog handlers for them.
//
// Four destinations exist:
//   - [Console] writes to stdout, as text on a terminal and JSON otherwise.
//   - [RollingFile] appends JSON lines to a dated file that rolls daily and
//     on size, keeps a bounded number of files and tolerates several
//     processes appending to the same path.
//   - [RemoteLog] batches events and ships them asynchronously to a Seq
//     compatible server using the compact log event format.
//   - [Telemetry] converts events into OpenTelemetry span events, either on
//     the caller's active span or on standalone spans.
//
// Opening a sink never performs network I/O. Failures to reach a destination
// at runtime are reported to [Env.ErrorWriter] and never returned to the code
// emitting the event. Only malformed configuration makes [Open] fail, with an
// error wrapping [ErrMalformed].
package sink
