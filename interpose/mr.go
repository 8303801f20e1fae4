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
)

// RegMR replaces ibv_reg_mr. Memory-region registration is admitted
// against the per-process and global memory caps before the provider
// is ever called. Arguments and the return value
// are passed as unsafe.Pointer / plain integers so the exported LD_PRELOAD
// entry point can call through without sharing this package's
// cgo-generated verbs types.
func RegMR(pd unsafe.Pointer, addr unsafe.Pointer, length uint64, access int) unsafe.Pointer {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: reg_mr: handle unavailable: %v", err)
		return nil
	}
	if h.provider == nil || !h.provider.Resolved("ibv_reg_mr") {
		logrus.Error("interpose: reg_mr: provider entry point unresolved")
		return nil
	}

	if h.passthroughOnly() {
		mr := h.dispatchRegMR((*C.struct_ibv_pd)(pd), addr, C.size_t(length), C.int(access))
		return unsafe.Pointer(mr)
	}

	if _, err := h.admitRegMR(length); err != nil {
		logrus.Debugf("interpose: reg_mr denied: %v", err)
		return nil
	}

	mr := h.dispatchRegMR((*C.struct_ibv_pd)(pd), addr, C.size_t(length), C.int(access))
	if mr == nil {
		return nil
	}

	h.recordMRRegistered(length)
	return unsafe.Pointer(mr)
}

// DeregMR replaces ibv_dereg_mr. The registered length is read back from
// the length field of the struct ibv_mr the provider itself populated at
// registration time, not re-derived from accountant state: struct ibv_mr
// carries it directly, so there's no need to consult the accountant to
// credit it back.
func DeregMR(mr unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: dereg_mr: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	if h.provider == nil || !h.provider.Resolved("ibv_dereg_mr") {
		return errNoProviderErrno
	}

	cMr := (*C.struct_ibv_mr)(mr)
	length := uint64(cMr.length)
	rc := h.dispatchDeregMR(cMr)
	if rc == 0 && !h.passthroughOnly() {
		h.recordMRDestroyed(length)
	}
	return int(rc)
}

// DestroyMR replaces the newer ibv_destroy_mr entry point, functionally
// equivalent to ibv_dereg_mr for accounting purposes.
func DestroyMR(mr unsafe.Pointer) int {
	h, err := get()
	if err != nil {
		logrus.Errorf("interpose: destroy_mr: handle unavailable: %v", err)
		return errNoProviderErrno
	}
	if h.provider == nil || !h.provider.Resolved("ibv_destroy_mr") {
		return errNoProviderErrno
	}

	cMr := (*C.struct_ibv_mr)(mr)
	length := uint64(cMr.length)
	rc := h.dispatchDestroyMR(cMr)
	if rc == 0 && !h.passthroughOnly() {
		h.recordMRDestroyed(length)
	}
	return int(rc)
}
