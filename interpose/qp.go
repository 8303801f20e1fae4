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

/*
#include <infiniband/verbs.h>
*/
import "C"

import (
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

// qpTypeOf maps the wire-level ibv_qp_type constant to the domain enum
// the policy layer reasons about.
func qpTypeOf(t C.enum_ibv_qp_type) domain.QPType {
	switch t {
	case C.IBV_QPT_RC:
		return domain.QPTypeRC
	case C.IBV_QPT_UC:
		return domain.QPTypeUC
	case C.IBV_QPT_UD:
		return domain.QPTypeUD
	default:
		return domain.QPTypeOther
	}
}

// CreateQP replaces ibv_create_qp. It implements the full three-phase
// sequence: lazy Handle init, admission against policy/limiter/counters,
// and - only on admit - dispatch to the real provider followed by
// accounting. When RDMA_INTERCEPT_ENABLE is unset the Handle is marked
// passthrough-only and this collapses to a dispatch with no admission
// and no accounting call.
//
// pd and attr are the caller's struct ibv_pd* / struct ibv_qp_init_attr*,
// passed as unsafe.Pointer so the exported LD_PRELOAD entry point (built
// as its own cgo package, with its own copy of the verbs C types) can
// call through without sharing this package's cgo-generated types. The
// returned value is a struct ibv_qp*, or nil on denial or failure.
func CreateQP(pd unsafe.Pointer, attr unsafe.Pointer) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: create_qp: handle unavailable: %v", err)
		return nil
	}
	if h.provider == nil || !h.provider.Resolved("ibv_create_qp") {
		logrus.Error("interpose: create_qp: provider entry point unresolved")
		return nil
	}

	cAttr := (*C.struct_ibv_qp_init_attr)(attr)

	if h.passthroughOnly() {
		qp := h.dispatchCreateQP((*C.struct_ibv_pd)(pd), cAttr)
		return unsafe.Pointer(qp)
	}

	req := QPCreateRequest{
		Type:      qpTypeOf(cAttr.qp_type),
		MaxSendWR: uint32(cAttr.cap.max_send_wr),
		MaxRecvWR: uint32(cAttr.cap.max_recv_wr),
	}

	if _, err := h.admitCreateQP(req); err != nil {
		logrus.Debugf("interpose: create_qp denied: %v", err)
		return nil
	}

	qp := h.dispatchCreateQP((*C.struct_ibv_pd)(pd), cAttr)
	if qp == nil {
		return nil
	}

	h.recordQPCreated()
	return unsafe.Pointer(qp)
}

// DestroyQP replaces ibv_destroy_qp. Destruction is never denied by
// policy - destroy paths only decrement; it dispatches unconditionally
// and only updates accounting on success. The int return mirrors
// ibv_destroy_qp's own errno-style convention.
func DestroyQP(qp unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: destroy_qp: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	if h.provider == nil || !h.provider.Resolved("ibv_destroy_qp") {
		return errNoProviderErrno
	}

	rc := h.dispatchDestroyQP((*C.struct_ibv_qp)(qp))
	if rc == 0 && !h.passthroughOnly() {
		h.recordQPDestroyed()
	}
	return int(rc)
}
