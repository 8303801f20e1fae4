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

// Package limiter computes the dynamic, process-local soft QP ceiling
// (DL, C7): a function of currently observed global utilization,
// recomputed at most once every 5 seconds. It only ever tightens the
// hard max_qp_per_process cap, never loosens it.
package limiter

import (
	"sync"
	"time"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/envutil"
)

const recomputeInterval = 5 * time.Second

const (
	ceilingLow    = 200
	ceilingMedium = 100
	ceilingHigh   = 50
)

const (
	utilLowThreshold  = 0.3
	utilHighThreshold = 0.7
)

type Limiter struct {
	mu          sync.Mutex
	lastCompute time.Time
	cached      uint32
	override    uint32
	hasOverride bool
}

func New() *Limiter {
	l := &Limiter{cached: ceilingLow}
	if n, ok := envutil.Uint32("LOCAL_QP_LIMIT"); ok {
		l.override = n
		l.hasOverride = true
	}
	return l
}

// SoftCeiling returns the process-local QP ceiling given the most
// recently observed global ResourceUsage and the configured
// max_global_qp. An explicit environment override wins unconditionally
// and is never rate-limited.
func (l *Limiter) SoftCeiling(global domain.ResourceUsage, maxGlobalQP uint32) uint32 {
	if l.hasOverride {
		return l.override
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.lastCompute.IsZero() && now.Sub(l.lastCompute) < recomputeInterval {
		return l.cached
	}

	l.cached = compute(global, maxGlobalQP)
	l.lastCompute = now
	return l.cached
}

func compute(global domain.ResourceUsage, maxGlobalQP uint32) uint32 {
	if maxGlobalQP == 0 {
		return ceilingLow
	}

	utilization := float64(global.QPCount) / float64(maxGlobalQP)

	switch {
	case utilization < utilLowThreshold:
		return ceilingLow
	case utilization < utilHighThreshold:
		return ceilingMedium
	default:
		return ceilingHigh
	}
}

var _ domain.LimiterIface = (*Limiter)(nil)
