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

// Package slogboothttp adds request-scoped logging properties to net/http
// servers and clients.
//
// [Middleware] assigns every request an ID, binds request properties to the
// request context with [slogboot.WithProperties], stores the logger with
// [slogboot.ContextWithLogger], and wraps the handler with otelhttp so events
// logged while serving carry trace_id and span_id. A completion event is
// written under the "host.http" source, which the upgraded pipeline holds at
// Warning, so only failed requests are reported once the host is running.
//
//	mux := http.NewServeMux()
//	handler := slogboothttp.Middleware()(mux)
//
//	func hello(w http.ResponseWriter, r *http.Request) {
//		slogboot.FromContext(r.Context()).InfoContext(r.Context(), "greeting")
//	}
//
// [Transport] forwards the request ID and trace context on outbound calls.
package slogboothttp
