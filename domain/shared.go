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

package domain

// SharedState is the exact payload backing the shared memory region (SMR):
// one instance per host, mapped read/write by every process that attaches.
// Field order matters: every integer field must stay naturally aligned so
// that a lock-free reader never observes a torn single field.
type SharedState struct {
	Global ResourceUsage

	Processes [MaxProcessSlots]ProcessSlot

	MaxGlobalQP     uint32
	MaxGlobalMR     uint32
	MaxGlobalMemory uint64

	// Lock is a test-and-set spinlock: 0 free, 1 held. It is the only
	// serialization mechanism across processes attached to the region.
	Lock uint32

	// Version is bumped on every mutation while Lock is held.
	Version uint64

	// LastUpdateNs is the wall-clock time (Unix nanoseconds) taken at the
	// last mutation. It is not a monotonic clock reading and can move
	// backwards if the system clock is stepped.
	LastUpdateNs int64
}

// SharedStateName is the well-known name of the shared memory region.
// The first process to attach creates and zeroes it.
const SharedStateName = "/rdma_intercept_shm"

// TableFullError is returned by UpdateProcess when no slot exists for a new PID
// and the process table has no free entry.
type TableFullError struct {
	PID int32
}

func (e *TableFullError) Error() string {
	return "process table full"
}
