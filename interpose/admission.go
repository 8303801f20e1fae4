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

package interpose

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/formatter"
)

// Sentinel error kinds. Only ErrAdmissionDenied is returned by code in
// this package: admitCreateQP and admitRegMR return it, and the wrappers
// log it and return nil to the verbs caller (never a Go error crossing
// the C ABI). ErrProviderMissing, ErrProviderFailure and
// ErrSmrUnavailable are declared but not returned anywhere.
var (
	ErrProviderMissing = errors.New("provider symbol unresolved")
	ErrAdmissionDenied = errors.New("admission denied")
	ErrProviderFailure = errors.New("provider call failed")
	ErrSmrUnavailable  = errors.New("shared memory region unavailable")
)

// QPCreateRequest holds the admission-relevant fields extracted from a
// struct ibv_qp_init_attr by the cgo wrapper, before any provider call.
type QPCreateRequest struct {
	PD       uintptr // opaque struct ibv_pd* identity, for logging only
	Type     domain.QPType
	MaxSendWR uint32
	MaxRecvWR uint32
}

// admitCreateQP implements the full admission conjunction: policy gate,
// allowed QP type, WR caps, dynamic limiter, per-process cap, global cap.
// Admission reads the most authoritative counter source obtainable (SMR
// -> kernel probe -> local accountant), picking the first that succeeds.
func (h *Handle) admitCreateQP(req QPCreateRequest) (domain.AdmissionSource, error) {
	if !h.cfg.EnableQPControl {
		return domain.SourceLocal, nil
	}

	if !h.cfg.QPAllowed[req.Type] {
		logrus.WithFields(logrus.Fields{"pid": h.pid, "qp_type": req.Type}).
			Debug("interpose: QP type not allowed by policy")
		return domain.SourceLocal, ErrAdmissionDenied
	}

	if req.MaxSendWR > h.cfg.MaxSendWRLimit || req.MaxRecvWR > h.cfg.MaxRecvWRLimit {
		logrus.WithFields(logrus.Fields{"pid": h.pid}).
			Debug("interpose: QP work-request caps exceed policy limit")
		return domain.SourceLocal, ErrAdmissionDenied
	}

	procUsage, src := h.processUsage()

	global := h.globalUsage()
	maxGlobalQP, _, _ := globalCaps(h)
	ceiling := h.dl.SoftCeiling(global, maxGlobalQP)
	if procUsage.QPCount >= ceiling {
		logrus.WithFields(logrus.Fields{"pid": h.pid, "ceiling": ceiling}).
			Debug("interpose: dynamic limiter denied QP creation")
		return src, ErrAdmissionDenied
	}

	if procUsage.QPCount+1 > h.cfg.MaxQPPerProcess {
		logrus.WithFields(logrus.Fields{"pid": h.pid}).
			Debug("interpose: per-process QP cap reached")
		return src, ErrAdmissionDenied
	}

	if maxGlobalQP > 0 && global.QPCount >= maxGlobalQP {
		logrus.WithFields(logrus.Fields{"pid": h.pid}).
			Debug("interpose: global QP limit reached")
		return src, ErrAdmissionDenied
	}

	return src, nil
}

// admitRegMR implements the per-process (mr_count < cap AND memory_used +
// length <= per-process cap) and global (memory_used + length <=
// max_global_memory) checks.
func (h *Handle) admitRegMR(length uint64) (domain.AdmissionSource, error) {
	if !h.cfg.EnableMRControl {
		return domain.SourceLocal, nil
	}

	procUsage, src := h.processUsage()
	if procUsage.MRCount >= h.cfg.MaxMRPerProcess {
		return src, ErrAdmissionDenied
	}
	if procUsage.MemoryUsed+length > h.cfg.MaxMemoryPerProcess {
		return src, ErrAdmissionDenied
	}

	global := h.globalUsage()
	_, _, maxGlobalMemory := globalCaps(h)
	if maxGlobalMemory > 0 && global.MemoryUsed+length > maxGlobalMemory {
		return src, ErrAdmissionDenied
	}

	return src, nil
}

// processUsage picks the most authoritative per-process counter source
// obtainable: SMR, then the kernel probe, then the local accountant,
// returning the first that succeeds.
func (h *Handle) processUsage() (domain.ResourceUsage, domain.AdmissionSource) {
	if h.smr != nil {
		return h.smr.GetProcess(h.pid), domain.SourceSMR
	}

	if h.probe != nil {
		if u, ok, err := h.probe.ReadProcess(uint32(h.pid)); err == nil && ok {
			return u, domain.SourceProbe
		}
	}

	logrus.Warnf("interpose: SMR and probe unavailable for %s, falling back to local accounting",
		formatter.Pid{Value: h.pid})
	return h.la.Snapshot(), domain.SourceLocal
}

func (h *Handle) globalUsage() domain.ResourceUsage {
	if h.smr != nil {
		return h.smr.GetGlobal()
	}
	if h.probe != nil {
		if u, err := h.probe.ReadGlobal(); err == nil {
			return u
		}
	}
	return domain.ResourceUsage{}
}

type limitsProvider interface {
	Limits() (uint32, uint32, uint64)
}

func globalCaps(h *Handle) (maxQP, maxMR uint32, maxMemory uint64) {
	if l, ok := h.smr.(limitsProvider); ok {
		return l.Limits()
	}
	return DefaultGlobalCaps()
}

// recordQPCreated runs under the local accountant's mutex and then
// pushes the new snapshot to SMR for this PID.
func (h *Handle) recordQPCreated() {
	h.la.IncQP()
	h.pushSnapshot()
}

func (h *Handle) recordQPDestroyed() {
	h.la.DecQP()
	h.pushSnapshot()
}

func (h *Handle) recordMRRegistered(length uint64) {
	h.la.IncMR(length)
	h.pushSnapshot()
}

func (h *Handle) recordMRDestroyed(length uint64) {
	h.la.DecMR(length)
	h.pushSnapshot()
}

func (h *Handle) pushSnapshot() {
	snap := h.la.Snapshot()

	if h.smr != nil {
		if err := h.smr.UpdateProcess(h.pid, snap); err != nil {
			logrus.Warnf("interpose: failed to push snapshot to SMR for %s: %v",
				formatter.Pid{Value: h.pid}, err)
		}
		return
	}

	if h.client != nil {
		// SMR unavailable: fall back to the legacy line protocol so the
		// coordinator still learns about this admission.
		if _, _, err := h.client.QPCreate(); err != nil {
			logrus.Debugf("interpose: legacy IPC fallback push failed: %v", err)
		}
	}
}
