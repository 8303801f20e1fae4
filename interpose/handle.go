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

// Package interpose implements the replacement verbs entry points:
// admission control, dispatch to the real provider, and post-success
// accounting. All of this is factored into an explicitly constructed
// context (Handle) resolved once per process behind a
// one-time-initialized package-level accessor, so the exported wrappers
// keep their C-ABI shape while the state they close over is ordinary,
// explicitly-constructed Go state.
package interpose

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rdma-intercept/rdma-intercept/accountant"
	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/formatter"
	"github.com/rdma-intercept/rdma-intercept/ipc"
	"github.com/rdma-intercept/rdma-intercept/limiter"
	"github.com/rdma-intercept/rdma-intercept/policy"
	"github.com/rdma-intercept/rdma-intercept/probe"
	"github.com/rdma-intercept/rdma-intercept/shmem"
)

// Handle is the per-process context every wrapper closes over. It is
// built exactly once, lazily, on the first call through any entry point.
type Handle struct {
	cfg    *domain.PolicyConfig
	la     *accountant.LocalAccountant
	dl     domain.LimiterIface
	smr    domain.SharedMemoryIface
	probe  domain.ProbeReaderIface
	client domain.IpcClientIface

	provider *Provider

	pid int32

	// enabled mirrors policy.Enabled() (RDMA_INTERCEPT_ENABLE) as read at
	// init time. false means every metered wrapper must dispatch straight
	// through to the provider: no admission, no accounting, no SMR/local
	// accountant mutation.
	enabled bool
}

// passthroughOnly reports whether the metered wrappers (CreateQP, RegMR,
// and their destroy/dereg counterparts) must skip admission and
// accounting entirely for this process.
func (h *Handle) passthroughOnly() bool {
	return !h.enabled
}

var (
	initOnce sync.Once
	handle   *Handle
	initErr  error
)

// get returns the process-wide Handle, performing the one-shot lazy
// initialization on first use. Re-entrant calls from within the shim's
// own logging or SMR paths must never reach back into an intercepted
// verbs function, or the guard's behavior here is unspecified.
func get() (*Handle, error) {
	initOnce.Do(func() {
		handle, initErr = newHandle()
	})
	return handle, initErr
}

func newHandle() (*Handle, error) {
	pid := int32(os.Getpid())

	prov, err := loadProvider()
	if err != nil {
		// ProviderMissing is fatal to every wrapper, but init itself must
		// not panic: each wrapper checks h.provider == nil at call time and
		// returns "function not implemented".
		logrus.Errorf("interpose: failed to load provider library: %v", err)
	}

	if !policy.Enabled() {
		// RDMA_INTERCEPT_ENABLE unset (or not "1"): the shim stays loaded
		// so the process's symbol resolution doesn't break, but it never
		// becomes an observer of this process's RDMA usage. No SMR
		// attachment, no local accountant, no policy file load - just
		// enough state to dispatch straight through to the provider.
		logrus.Debugf("interpose: RDMA_INTERCEPT_ENABLE not set, running as passthrough for %s",
			formatter.Pid{Value: pid})
		return &Handle{
			cfg:      policy.DefaultPolicyConfig(),
			provider: prov,
			pid:      pid,
			enabled:  false,
		}, nil
	}

	cfg, err := policy.NewService().Load("")
	if err != nil {
		logrus.Warnf("interpose: policy load failed, using defaults: %v", err)
		cfg = policy.DefaultPolicyConfig()
	}

	var smr domain.SharedMemoryIface
	maxQP, maxMR, maxMem := DefaultGlobalCaps()
	region, err := shmem.Init(domain.SharedStateName, maxQP, maxMR, maxMem)
	if err != nil {
		logrus.Warnf("interpose: SMR unavailable, falling back to probe/local accounting: %v", err)
	} else {
		smr = region
	}

	h := &Handle{
		cfg:      cfg,
		la:       accountant.New(),
		dl:       limiter.New(),
		smr:      smr,
		probe:    probe.NewFileReader(""),
		client:   ipc.NewClient(""),
		provider: prov,
		pid:      pid,
		enabled:  true,
	}

	logrus.Debugf("interpose: initialized for %s", formatter.Pid{Value: pid})
	return h, nil
}

// DefaultGlobalCaps returns the same values as the coordinator's
// DefaultMaxGlobal* constants without importing the coordinator package
// (which pulls in the ipc server and pidmonitor, neither of which belong
// inside an application process). Unlike coordinator.StartupLimits, it
// does not apply the RDMA_INTERCEPT_MAX_GLOBAL_* environment overrides.
func DefaultGlobalCaps() (maxQP, maxMR uint32, maxMemory uint64) {
	return 1000, 10000, 1 << 40
}
