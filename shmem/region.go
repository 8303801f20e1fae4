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

// Package shmem implements the shared memory region (SMR) that backs
// domain.SharedState, and the typed accessor (SMC) over it. The region is
// a single POD layout owned by no language object on the wire: mutation is
// mediated by explicit lock/unlock on a uint32 field via acquire/release
// atomics, because the region is shared with processes that may be
// running entirely different runtimes. sync.Mutex would be unsafe here:
// its state lives in the Go runtime, not in the mapped bytes.
package shmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

// backingDir is where the named region's backing file lives; /dev/shm is
// tmpfs on every Linux host, giving us the same semantics a POSIX
// shm_open(3) region would.
const backingDir = "/dev/shm"

const regionSize = int(unsafe.Sizeof(domain.SharedState{}))

type Region struct {
	file  *os.File
	data  []byte
	state *domain.SharedState
}

// Init creates or attaches to the named region. The first creator zeroes
// it and writes the default global caps; later attaches are idempotent.
// Init fails only on OS errors (out of descriptors, permission denied).
func Init(name string, maxQP, maxMR uint32, maxMemory uint64) (*Region, error) {
	path := filepath.Join(backingDir, filepath.Base(name))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("shmem: failed to open %s: %w", path, err)
	}

	created := false
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		created = true
		if err := f.Truncate(int64(regionSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("shmem: failed to size %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: failed to mmap %s: %w", path, err)
	}

	r := &Region{
		file:  f,
		data:  data,
		state: (*domain.SharedState)(unsafe.Pointer(&data[0])),
	}

	if created {
		r.lock()
		r.state.MaxGlobalQP = maxQP
		r.state.MaxGlobalMR = maxMR
		r.state.MaxGlobalMemory = maxMemory
		r.state.Version++
		r.state.LastUpdateNs = time.Now().UnixNano()
		r.unlock()
		logrus.Infof("shmem: created region %s (size=%d)", path, regionSize)
	} else {
		logrus.Debugf("shmem: attached to existing region %s", path)
	}

	return r, nil
}

func (r *Region) lock() {
	for !atomic.CompareAndSwapUint32(&r.state.Lock, 0, 1) {
		// Busy-wait: hold times are a handful of field writes, no I/O ever
		// happens under the lock.
	}
}

func (r *Region) unlock() {
	atomic.StoreUint32(&r.state.Lock, 0)
}

// GetGlobal is an unlocked read. It may return a mid-update value for an
// individual field if raced against a writer, but never a torn field.
func (r *Region) GetGlobal() domain.ResourceUsage {
	return r.state.Global
}

// GetProcess linear-scans the process table for pid, returning a zeroed
// usage (not an error) when the pid is absent.
func (r *Region) GetProcess(pid int32) domain.ResourceUsage {
	for i := range r.state.Processes {
		if r.state.Processes[i].PID == pid {
			return r.state.Processes[i].Usage
		}
	}
	return domain.ResourceUsage{}
}

// UpdateGlobal overwrites the global counters under the lock.
func (r *Region) UpdateGlobal(u domain.ResourceUsage) error {
	r.lock()
	defer r.unlock()

	r.state.Global = u
	r.bump()
	return nil
}

// UpdateProcess finds pid's slot (or the first free slot for a new pid),
// writes u into it, and bumps the version. It fails with TableFullError
// when pid is new and no free slot remains.
func (r *Region) UpdateProcess(pid int32, u domain.ResourceUsage) error {
	r.lock()
	defer r.unlock()

	freeIdx := -1
	for i := range r.state.Processes {
		if r.state.Processes[i].PID == pid {
			r.state.Processes[i].Usage = u
			r.bump()
			return nil
		}
		if freeIdx < 0 && r.state.Processes[i].Free() {
			freeIdx = i
		}
	}

	if freeIdx < 0 {
		return &domain.TableFullError{PID: pid}
	}

	r.state.Processes[freeIdx].PID = pid
	r.state.Processes[freeIdx].Usage = u
	r.bump()
	return nil
}

// FreeProcess zeroes and releases pid's slot, e.g. once the garbage
// sweep confirms the process is gone.
func (r *Region) FreeProcess(pid int32) {
	r.lock()
	defer r.unlock()

	for i := range r.state.Processes {
		if r.state.Processes[i].PID == pid {
			r.state.Processes[i] = domain.ProcessSlot{}
			r.bump()
			return
		}
	}
}

// SetGlobalLimits updates the immutable-for-the-daemon's-lifetime caps;
// only set_global_limits (startup, or an explicit admin call) may call
// this.
func (r *Region) SetGlobalLimits(maxQP, maxMR uint32, maxMemory uint64) error {
	r.lock()
	defer r.unlock()

	r.state.MaxGlobalQP = maxQP
	r.state.MaxGlobalMR = maxMR
	r.state.MaxGlobalMemory = maxMemory
	r.bump()
	return nil
}

// Limits returns the current global caps.
func (r *Region) Limits() (maxQP, maxMR uint32, maxMemory uint64) {
	return r.state.MaxGlobalQP, r.state.MaxGlobalMR, r.state.MaxGlobalMemory
}

// Snapshot copies the global counters and every occupied process slot
// out under the lock.
func (r *Region) Snapshot() (domain.ResourceUsage, []domain.ProcessSlot) {
	r.lock()
	defer r.unlock()

	global := r.state.Global
	var procs []domain.ProcessSlot
	for _, s := range r.state.Processes {
		if !s.Free() {
			procs = append(procs, s)
		}
	}
	return global, procs
}

func (r *Region) Version() uint64 {
	return atomic.LoadUint64(&r.state.Version)
}

func (r *Region) bump() {
	r.state.Version++
	r.state.LastUpdateNs = time.Now().UnixNano()
}

// Close unmaps the region. The backing file persists so other processes
// keep sharing the same state.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.file.Close()
	return err
}

var _ domain.SharedMemoryIface = (*Region)(nil)
