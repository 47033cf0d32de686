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

// Package slogbootgrpc adds per-RPC logging properties to gRPC servers and
// clients.
//
// The interceptors bind the RPC service, method and peer to the call
// context with [slogboot.WithProperties] so every event logged while handling
// the call carries them, and write a completion event under the "host.grpc"
// source. [ServerOptions] and [DialOptions] also install otelgrpc stats
// handlers so events are correlated with the RPC span.
//
//	srv := grpc.NewServer(slogbootgrpc.ServerOptions()...)
package slogbootgrpc
