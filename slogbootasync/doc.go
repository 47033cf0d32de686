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

// Package slogbootasync decouples log emission from sink I/O. [Wrap] puts a
// bounded queue in front of a slog.Handler and drains it on one worker
// goroutine, so records reach the wrapped handler in emission order. A full
// queue blocks the caller instead of dropping.
//
// [Handler.Close] waits for the queue to empty and then closes the wrapped
// handler, both within the flush timeout:
//
//	async := slogbootasync.Wrap(fanout, slogbootasync.WithFlushTimeout(5*time.Second))
//	defer async.Close()
//
// A wrapped handler implementing [ContextCloser] receives the part of the
// timeout the drain left over.
package slogbootasync
