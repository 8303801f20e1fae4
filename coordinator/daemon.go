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

// Package coordinator implements the coordinator daemon (CD, C8): the
// single host-local service that owns the authoritative shared memory
// region, drives the periodic kernel-probe synchronizer, and serves the
// legacy line protocol.
package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	pidmonitor "github.com/nestybox/sysbox-libs/pidmonitor"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/envutil"
	"github.com/rdma-intercept/rdma-intercept/internal/formatter"
	"github.com/rdma-intercept/rdma-intercept/probe"
)

const (
	// DefaultMaxGlobalQP and friends are the caps applied at startup
	// unless overridden by environment.
	DefaultMaxGlobalQP     = 1000
	DefaultMaxGlobalMR     = 10000
	DefaultMaxGlobalMemory = 1 << 40 // 1 TiB

	syncInterval  = 100 * time.Millisecond
	sweepInterval = 5 * time.Second

	// sweepGrace bounds how long a slot may go unreported by the kernel
	// probe before the garbage sweep frees it. Direct SMC writes to the
	// slot do not restart this window.
	sweepGrace = 30 * time.Second
)

// Daemon wires the coordinator's already-constructed services together;
// it is assembled once at startup by New.
type Daemon struct {
	smr   domain.SharedMemoryIface
	probe domain.ProbeReaderIface
	ipc   domain.IpcServerIface

	mu        sync.Mutex
	lastSeen  map[int32]time.Time
	watched   map[int32]bool
	pm        *pidmonitor.PidMon
	stopSync  chan struct{}
	stopSweep chan struct{}
	stopPm    chan struct{}
	wg        sync.WaitGroup

	// warnedGlobalMissing and warnedProcessMissing suppress repeat WARNs
	// for a probe map that stays absent across many syncTicks (the
	// synchronizer runs every syncInterval); syncTick only alone is
	// responsible for clearing them once the map reappears.
	warnedGlobalMissing  bool
	warnedProcessMissing bool
}

// New builds a daemon around already-constructed services. Callers
// (typically cmd/rdma-interceptd) are responsible for constructing smr,
// probe and ipc and handing them in, constructing every service up front
// in main() and wiring them here.
//
// A pidmonitor.PidMon is started alongside them, polled at 500ms, so the
// garbage sweep can reclaim a process slot the instant its owning
// process exits rather than waiting out the full sweepGrace window.
func New(smr domain.SharedMemoryIface, probe domain.ProbeReaderIface, ipc domain.IpcServerIface) *Daemon {
	pm, err := pidmonitor.New(&pidmonitor.Cfg{Poll: 500 * time.Millisecond})
	if err != nil {
		logrus.Warnf("coordinator: pid monitor unavailable, falling back to grace-period sweep only: %v", err)
		pm = nil
	}

	return &Daemon{
		smr:       smr,
		probe:     probe,
		ipc:       ipc,
		lastSeen:  make(map[int32]time.Time),
		watched:   make(map[int32]bool),
		pm:        pm,
		stopSync:  make(chan struct{}),
		stopSweep: make(chan struct{}),
		stopPm:    make(chan struct{}),
	}
}

// StartupLimits resolves max_global_qp / max_global_memory from the
// RDMA_INTERCEPT_MAX_GLOBAL_QP / RDMA_INTERCEPT_MAX_GLOBAL_MEMORY
// environment overrides, falling back to the package defaults.
func StartupLimits() (maxQP uint32, maxMR uint32, maxMemory uint64) {
	maxQP = DefaultMaxGlobalQP
	maxMR = DefaultMaxGlobalMR
	maxMemory = DefaultMaxGlobalMemory

	if n, ok := envutil.Uint32("MAX_GLOBAL_QP"); ok {
		maxQP = n
	}
	if n, ok := envutil.Uint64("MAX_GLOBAL_MEMORY"); ok {
		maxMemory = n
	}

	return maxQP, maxMR, maxMemory
}

// Run starts the synchronizer and garbage-sweep loops and blocks serving
// the legacy line protocol until Stop is called.
func (d *Daemon) Run() error {
	d.wg.Add(2)
	go d.syncLoop()
	go d.sweepLoop()

	if d.pm != nil {
		d.wg.Add(1)
		go d.pidEventLoop()
	}

	logrus.Info("coordinator: ready")
	return d.ipc.Serve()
}

// Stop halts the background loops and closes the listening socket. Safe
// to call once, typically from a signal handler.
func (d *Daemon) Stop() {
	close(d.stopSync)
	close(d.stopSweep)
	if d.pm != nil {
		close(d.stopPm)
		d.pm.Close()
	}
	d.ipc.Close()
	d.wg.Wait()
}

// pidEventLoop drains pidmonitor.PidMon's exit notifications and
// immediately reclaims the corresponding process slot.
func (d *Daemon) pidEventLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopPm:
			return
		default:
		}

		events := d.pm.WaitEvent()
		for _, e := range events {
			if e.Event&pidmonitor.Exit == 0 {
				continue
			}
			d.reclaim(int32(e.Pid))
		}
	}
}

func (d *Daemon) reclaim(pid int32) {
	f, ok := d.smr.(freer)
	if !ok {
		return
	}

	d.mu.Lock()
	delete(d.lastSeen, pid)
	delete(d.watched, pid)
	d.mu.Unlock()

	logrus.Debugf("coordinator: reclaiming slot for %s on process exit", formatter.Pid{Value: pid})
	f.FreeProcess(pid)
}

// watch begins pidmonitor tracking for pid if this is the first time the
// synchronizer has observed it.
func (d *Daemon) watch(pid int32) {
	if d.pm == nil {
		return
	}
	d.mu.Lock()
	already := d.watched[pid]
	d.watched[pid] = true
	d.mu.Unlock()

	if !already {
		d.pm.AddEvent([]pidmonitor.PidEvent{{Pid: uint32(pid), Event: pidmonitor.Exit}})
	}
}

// syncLoop is the eventual-consistency anchor: every syncInterval it
// overwrites SharedState.Global with the kernel's singleton counter and
// reconciles every PID the kernel probe currently reports. Failures are
// logged and retried on the next tick; no entries are invented.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopSync:
			return
		case <-ticker.C:
			d.syncTick()
		}
	}
}

func (d *Daemon) syncTick() {
	global, err := d.probe.ReadGlobal()
	switch {
	case errors.Is(err, probe.ErrMapNotPresent):
		if !d.warnedGlobalMissing {
			logrus.Warnf("coordinator: sync: global probe map not present yet, reporting zeroes until it appears")
			d.warnedGlobalMissing = true
		}
		if err := d.smr.UpdateGlobal(global); err != nil {
			logrus.Warnf("coordinator: sync: failed to update global SMR slot: %v", err)
		}
	case err != nil:
		logrus.Warnf("coordinator: sync: failed to read global probe map: %v", err)
	default:
		d.warnedGlobalMissing = false
		if err := d.smr.UpdateGlobal(global); err != nil {
			logrus.Warnf("coordinator: sync: failed to update global SMR slot: %v", err)
		}
	}

	procs, err := d.probe.ReadAllProcesses()
	switch {
	case errors.Is(err, probe.ErrMapNotPresent):
		if !d.warnedProcessMissing {
			logrus.Warnf("coordinator: sync: process probe map not present yet, reporting no processes until it appears")
			d.warnedProcessMissing = true
		}
	case err != nil:
		logrus.Warnf("coordinator: sync: failed to read process probe map: %v", err)
		return
	default:
		d.warnedProcessMissing = false
	}

	d.mu.Lock()
	now := time.Now()
	for pid, usage := range procs {
		if err := d.smr.UpdateProcess(int32(pid), usage); err != nil {
			logrus.Warnf("coordinator: sync: failed to update slot for %s: %v",
				formatter.Pid{Value: int32(pid)}, err)
			continue
		}
		d.lastSeen[int32(pid)] = now
	}
	d.mu.Unlock()

	for pid := range procs {
		d.watch(int32(pid))
	}
}

// sweepLoop reclaims process slots the kernel probe has stopped
// reporting for longer than sweepGrace. Only PIDs the synchronizer has
// seen in a probe report are tracked; a slot written only by direct SMC
// writes is never reclaimed here. Without this, a process that exits
// without decrementing its own slot would leave it stale until the table
// fills.
func (d *Daemon) sweepLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopSweep:
			return
		case <-ticker.C:
			d.sweepTick()
		}
	}
}

type freer interface {
	FreeProcess(pid int32)
}

func (d *Daemon) sweepTick() {
	f, ok := d.smr.(freer)
	if !ok {
		return
	}

	procs, err := d.probe.ReadAllProcesses()
	if err != nil && !errors.Is(err, probe.ErrMapNotPresent) {
		logrus.Warnf("coordinator: sweep: failed to read process probe map: %v", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-sweepGrace)
	for pid, seenAt := range d.lastSeen {
		if _, stillReported := procs[uint32(pid)]; stillReported {
			continue
		}
		if seenAt.After(cutoff) {
			continue
		}
		logrus.Debugf("coordinator: sweep: reclaiming stale slot for %s", formatter.Pid{Value: pid})
		f.FreeProcess(pid)
		delete(d.lastSeen, pid)
	}
}
