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
	"errors"

	"github.com/pjscruggs/slogboot/sink"
)

// ErrConfigurationMalformed reports configuration that can never produce a
// working logger: a file path template without a date placeholder, an
// unparsable remote log URL, an unknown level name. Errors returned by
// [Build], [Bootstrap] and [Pipeline.Upgrade] wrap it when that is the cause.
var ErrConfigurationMalformed = sink.ErrMalformed

// ErrPipelineClosed is returned by [Pipeline.Upgrade] after
// [Pipeline.CloseAndFlush].
var ErrPipelineClosed = errors.New("slogboot: pipeline closed")
