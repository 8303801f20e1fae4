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

// The CQ, PD, SRQ and AH entry points carry no admission decision -
// creating them does not consume any of the counters this module
// meters. Each wrapper still
// goes through the same lazy-init/dispatch shape as the metered ones so
// every entry point is observable through the same logging, but no
// admission or accounting call is made. Like the metered wrappers, the
// exported boundary here is unsafe.Pointer / plain ints rather than this
// package's own cgo-generated verbs types, so the LD_PRELOAD entry point
// (its own cgo package) can call through without sharing types.
package interpose

/*
#include <infiniband/verbs.h>
*/
import "C"

import (
	"unsafe"

	"github.com/sirupsen/logrus"
)

func CreateCQ(ctx unsafe.Pointer, cqe int, cqContext unsafe.Pointer, channel unsafe.Pointer, compVector int) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: create_cq: handle unavailable: %v", err)
		return nil
	}
	cq := h.dispatchCreateCQ((*C.struct_ibv_context)(ctx), C.int(cqe), cqContext,
		(*C.struct_ibv_comp_channel)(channel), C.int(compVector))
	return unsafe.Pointer(cq)
}

func DestroyCQ(cq unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: destroy_cq: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchDestroyCQ((*C.struct_ibv_cq)(cq)))
}

func AllocPD(ctx unsafe.Pointer) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: alloc_pd: handle unavailable: %v", err)
		return nil
	}
	return unsafe.Pointer(h.dispatchAllocPD((*C.struct_ibv_context)(ctx)))
}

func DeallocPD(pd unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: dealloc_pd: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchDeallocPD((*C.struct_ibv_pd)(pd)))
}

func CreateSRQ(pd unsafe.Pointer, attr unsafe.Pointer) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: create_srq: handle unavailable: %v", err)
		return nil
	}
	srq := h.dispatchCreateSRQ((*C.struct_ibv_pd)(pd), (*C.struct_ibv_srq_init_attr)(attr))
	return unsafe.Pointer(srq)
}

func ModifySRQ(srq unsafe.Pointer, attr unsafe.Pointer, mask int) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: modify_srq: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchModifySRQ((*C.struct_ibv_srq)(srq), (*C.struct_ibv_srq_attr)(attr), C.int(mask)))
}

func QuerySRQ(srq unsafe.Pointer, attr unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: query_srq: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchQuerySRQ((*C.struct_ibv_srq)(srq), (*C.struct_ibv_srq_attr)(attr)))
}

func DestroySRQ(srq unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: destroy_srq: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchDestroySRQ((*C.struct_ibv_srq)(srq)))
}

func CreateAH(pd unsafe.Pointer, attr unsafe.Pointer) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: create_ah: handle unavailable: %v", err)
		return nil
	}
	ah := h.dispatchCreateAH((*C.struct_ibv_pd)(pd), (*C.struct_ibv_ah_attr)(attr))
	return unsafe.Pointer(ah)
}

func ModifyAH(ah unsafe.Pointer, attr unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: modify_ah: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchModifyAH((*C.struct_ibv_ah)(ah), (*C.struct_ibv_ah_attr)(attr)))
}

func DestroyAH(ah unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: destroy_ah: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	return int(h.dispatchDestroyAH((*C.struct_ibv_ah)(ah)))
}
