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

// Package accountant holds the per-process, in-memory resource counters.
// It is the source of truth when the shared memory region is unavailable,
// and the only state mutated directly by the interposer's admit/destroy
// paths.
package accountant

import (
	"sync"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

type LocalAccountant struct {
	mu  sync.Mutex
	qp  uint32
	mr  uint32
	mem uint64
}

func New() *LocalAccountant {
	return &LocalAccountant{}
}

// IncQP increments the local QP counter and returns the new value.
func (a *LocalAccountant) IncQP() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.qp++
	return a.qp
}

// DecQP decrements the local QP counter, saturating at zero, and returns
// the new value.
func (a *LocalAccountant) DecQP() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.qp > 0 {
		a.qp--
	}
	return a.qp
}

// IncMR increments the MR counter and adds length bytes to memory_used,
// returning the new values.
func (a *LocalAccountant) IncMR(length uint64) (uint32, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mr++
	a.mem += length
	return a.mr, a.mem
}

// DecMR decrements the MR counter (saturating at zero) and subtracts
// length bytes from memory_used (saturating at zero), returning the new
// values. length must be the region's declared length captured before
// destruction.
func (a *LocalAccountant) DecMR(length uint64) (uint32, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mr > 0 {
		a.mr--
	}
	if length > a.mem {
		a.mem = 0
	} else {
		a.mem -= length
	}
	return a.mr, a.mem
}

// Snapshot returns the current triple under the mutex.
func (a *LocalAccountant) Snapshot() domain.ResourceUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.ResourceUsage{
		QPCount:    a.qp,
		MRCount:    a.mr,
		MemoryUsed: a.mem,
	}
}

var _ domain.AccountantIface = (*LocalAccountant)(nil)
