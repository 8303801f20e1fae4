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

// MaxProcessSlots is the fixed capacity of the shared-state process table.
const MaxProcessSlots = 1024

// QPType enumerates the RDMA queue-pair transport types that the policy
// store can individually allow or deny.
type QPType int

const (
	QPTypeRC QPType = iota
	QPTypeUC
	QPTypeUD
	QPTypeOther
)

func (t QPType) String() string {
	switch t {
	case QPTypeRC:
		return "RC"
	case QPTypeUC:
		return "UC"
	case QPTypeUD:
		return "UD"
	default:
		return "OTHER"
	}
}

// ResourceUsage is a copy-type triple of the three metered quantities.
// Fields are non-negative; MemoryUsed counts bytes actually registered,
// not the capacity requested.
type ResourceUsage struct {
	QPCount     uint32
	MRCount     uint32
	MemoryUsed  uint64
}

// Add returns the field-wise sum of u and other.
func (u ResourceUsage) Add(other ResourceUsage) ResourceUsage {
	return ResourceUsage{
		QPCount:    u.QPCount + other.QPCount,
		MRCount:    u.MRCount + other.MRCount,
		MemoryUsed: u.MemoryUsed + other.MemoryUsed,
	}
}

// IsZero reports whether all three counters are zero.
func (u ResourceUsage) IsZero() bool {
	return u.QPCount == 0 && u.MRCount == 0 && u.MemoryUsed == 0
}

// ProcessSlot associates a PID with its resource usage inside the
// fixed-capacity process table. PID 0 denotes a free slot.
type ProcessSlot struct {
	PID   int32
	Usage ResourceUsage
}

// Free reports whether the slot holds no live process.
func (s ProcessSlot) Free() bool {
	return s.PID == 0
}
