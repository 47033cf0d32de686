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

// Package supervisor runs a host process inside the two-phase logging
// lifecycle.
//
// Run bootstraps logging from the environment, lets the host build itself
// and upgrade the logger once its configuration exists, runs it, and
// guarantees that any failure is recorded as a Fatal event before the
// pipeline is flushed and the process exit code is returned.
//
//	func main() {
//		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//		defer stop()
//		os.Exit(supervisor.Run(ctx, newHost()))
//	}
package supervisor
