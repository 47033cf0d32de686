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

package supervisor

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// StackKey carries the goroutine stack of a recovered panic on the Fatal
// event.
const StackKey = "error.stack"

const maxStackFrames = 64

// PanicError is returned to the Fatal event when the host panics.
type PanicError struct {
	State State
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.State, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// captureStack formats the current goroutine stack starting at the frame
// that panicked. Runtime frames and this package's recovery frames are
// skipped.
func captureStack() string {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(0, pcs)
	return formatPCs(trimPCs(pcs[:n], skipRecoveryFrame))
}

func skipRecoveryFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "github.com/pjscruggs/slogboot/supervisor.captureStack") ||
		strings.HasPrefix(fn, "github.com/pjscruggs/slogboot/supervisor.(*supervisor).serve.func")
}

// trimPCs drops leading frames matching skip.
func trimPCs(pcs []uintptr, skip func(string) bool) []uintptr {
	frames := runtime.CallersFrames(pcs)
	n := 0
	for {
		frame, more := frames.Next()
		if !skip(frame.Function) {
			break
		}
		n++
		if !more {
			return nil
		}
	}
	return pcs[n:]
}

// formatPCs renders frames the way runtime/debug.Stack does.
func formatPCs(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(pcs) * 64)
	var intBuf [20]byte
	frames := runtime.CallersFrames(pcs)
	for count := 0; count < maxStackFrames; count++ {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if frame.Function != "" && frame.Function != "runtime.goexit" {
			sb.WriteString(frame.Function)
			sb.WriteString("\n\t")
			sb.WriteString(frame.File)
			sb.WriteByte(':')
			sb.Write(strconv.AppendInt(intBuf[:0], int64(frame.Line), 10))
			if frame.Entry != 0 && frame.PC > frame.Entry {
				sb.WriteString(" +0x")
				sb.Write(strconv.AppendUint(intBuf[:0], uint64(frame.PC-frame.Entry), 16))
			}
			sb.WriteByte('\n')
		}
		if !more {
			break
		}
	}
	return sb.String()
}
