//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package formatter supplies small logrus-field friendly stringer types
// for consistent rendering across log lines.
package formatter

import (
	"fmt"

	"github.com/docker/docker/pkg/stringid"
)

// Pid renders a pid consistently across log lines.
type Pid struct {
	Value int32
}

func (p Pid) String() string {
	return fmt.Sprintf("pid=%d", p.Value)
}

// ConnID renders a per-connection identifier truncated to a short,
// log-friendly form.
type ConnID struct {
	ID string
}

func (c ConnID) String() string {
	return stringid.TruncateID(c.ID)
}
