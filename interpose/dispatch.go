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

// Dispatch is the "call the real provider" half of the three-phase
// sequence (lazy init -> admission -> dispatch+accounting). A resolved
// symbol is an untyped void*; giving it back its real signature and
// calling through it needs a cast compiled against the provider's own
// struct layouts. This file does that in C: one small trampoline per
// verbs entry point, each doing nothing but the cast-and-call its
// typedef describes.
package interpose

/*
#include <infiniband/verbs.h>
#include <stdlib.h>

typedef struct ibv_qp *(*ibv_create_qp_fn)(struct ibv_pd *, struct ibv_qp_init_attr *);
typedef int (*ibv_destroy_qp_fn)(struct ibv_qp *);
typedef struct ibv_cq *(*ibv_create_cq_fn)(struct ibv_context *, int, void *, struct ibv_comp_channel *, int);
typedef int (*ibv_destroy_cq_fn)(struct ibv_cq *);
typedef struct ibv_pd *(*ibv_alloc_pd_fn)(struct ibv_context *);
typedef int (*ibv_dealloc_pd_fn)(struct ibv_pd *);
typedef struct ibv_mr *(*ibv_reg_mr_fn)(struct ibv_pd *, void *, size_t, int);
typedef int (*ibv_dereg_mr_fn)(struct ibv_mr *);
typedef int (*ibv_destroy_mr_fn)(struct ibv_mr *);
typedef struct ibv_srq *(*ibv_create_srq_fn)(struct ibv_pd *, struct ibv_srq_init_attr *);
typedef int (*ibv_modify_srq_fn)(struct ibv_srq *, struct ibv_srq_attr *, int);
typedef int (*ibv_query_srq_fn)(struct ibv_srq *, struct ibv_srq_attr *);
typedef int (*ibv_destroy_srq_fn)(struct ibv_srq *);
typedef struct ibv_ah *(*ibv_create_ah_fn)(struct ibv_pd *, struct ibv_ah_attr *);
typedef int (*ibv_modify_ah_fn)(struct ibv_ah *, struct ibv_ah_attr *);
typedef int (*ibv_destroy_ah_fn)(struct ibv_ah *);

static struct ibv_qp *call_create_qp(void *fn, struct ibv_pd *pd, struct ibv_qp_init_attr *attr) {
	return ((ibv_create_qp_fn)fn)(pd, attr);
}
static int call_destroy_qp(void *fn, struct ibv_qp *qp) {
	return ((ibv_destroy_qp_fn)fn)(qp);
}
static struct ibv_cq *call_create_cq(void *fn, struct ibv_context *ctx, int cqe, void *cq_context,
		struct ibv_comp_channel *channel, int comp_vector) {
	return ((ibv_create_cq_fn)fn)(ctx, cqe, cq_context, channel, comp_vector);
}
static int call_destroy_cq(void *fn, struct ibv_cq *cq) {
	return ((ibv_destroy_cq_fn)fn)(cq);
}
static struct ibv_pd *call_alloc_pd(void *fn, struct ibv_context *ctx) {
	return ((ibv_alloc_pd_fn)fn)(ctx);
}
static int call_dealloc_pd(void *fn, struct ibv_pd *pd) {
	return ((ibv_dealloc_pd_fn)fn)(pd);
}
static struct ibv_mr *call_reg_mr(void *fn, struct ibv_pd *pd, void *addr, size_t length, int access) {
	return ((ibv_reg_mr_fn)fn)(pd, addr, length, access);
}
static int call_dereg_mr(void *fn, struct ibv_mr *mr) {
	return ((ibv_dereg_mr_fn)fn)(mr);
}
static int call_destroy_mr(void *fn, struct ibv_mr *mr) {
	return ((ibv_destroy_mr_fn)fn)(mr);
}
static struct ibv_srq *call_create_srq(void *fn, struct ibv_pd *pd, struct ibv_srq_init_attr *attr) {
	return ((ibv_create_srq_fn)fn)(pd, attr);
}
static int call_modify_srq(void *fn, struct ibv_srq *srq, struct ibv_srq_attr *attr, int mask) {
	return ((ibv_modify_srq_fn)fn)(srq, attr, mask);
}
static int call_query_srq(void *fn, struct ibv_srq *srq, struct ibv_srq_attr *attr) {
	return ((ibv_query_srq_fn)fn)(srq, attr);
}
static int call_destroy_srq(void *fn, struct ibv_srq *srq) {
	return ((ibv_destroy_srq_fn)fn)(srq);
}
static struct ibv_ah *call_create_ah(void *fn, struct ibv_pd *pd, struct ibv_ah_attr *attr) {
	return ((ibv_create_ah_fn)fn)(pd, attr);
}
static int call_modify_ah(void *fn, struct ibv_ah *ah, struct ibv_ah_attr *attr) {
	return ((ibv_modify_ah_fn)fn)(ah, attr);
}
static int call_destroy_ah(void *fn, struct ibv_ah *ah) {
	return ((ibv_destroy_ah_fn)fn)(ah);
}
*/
import "C"

import "unsafe"

// errNoProviderErrno is returned (as an errno-shaped value by the wrappers,
// never as a Go error crossing the C ABI) when the requested entry
// point never resolved during loadProvider - e.g. running against a
// provider build where it is header-inlined.
const errNoProviderErrno = -38 // ENOSYS

func (h *Handle) dispatchCreateQP(pd *C.struct_ibv_pd, attr *C.struct_ibv_qp_init_attr) *C.struct_ibv_qp {
	fn := h.provider.Symbol("ibv_create_qp")
	if fn == nil {
		return nil
	}
	return C.call_create_qp(fn, pd, attr)
}

func (h *Handle) dispatchDestroyQP(qp *C.struct_ibv_qp) C.int {
	fn := h.provider.Symbol("ibv_destroy_qp")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_destroy_qp(fn, qp)
}

func (h *Handle) dispatchCreateCQ(ctx *C.struct_ibv_context, cqe C.int, cqContext unsafe.Pointer,
	channel *C.struct_ibv_comp_channel, compVector C.int) *C.struct_ibv_cq {
	fn := h.provider.Symbol("ibv_create_cq")
	if fn == nil {
		return nil
	}
	return C.call_create_cq(fn, ctx, cqe, cqContext, channel, compVector)
}

func (h *Handle) dispatchDestroyCQ(cq *C.struct_ibv_cq) C.int {
	fn := h.provider.Symbol("ibv_destroy_cq")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_destroy_cq(fn, cq)
}

func (h *Handle) dispatchAllocPD(ctx *C.struct_ibv_context) *C.struct_ibv_pd {
	fn := h.provider.Symbol("ibv_alloc_pd")
	if fn == nil {
		return nil
	}
	return C.call_alloc_pd(fn, ctx)
}

func (h *Handle) dispatchDeallocPD(pd *C.struct_ibv_pd) C.int {
	fn := h.provider.Symbol("ibv_dealloc_pd")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_dealloc_pd(fn, pd)
}

func (h *Handle) dispatchRegMR(pd *C.struct_ibv_pd, addr unsafe.Pointer, length C.size_t, access C.int) *C.struct_ibv_mr {
	fn := h.provider.Symbol("ibv_reg_mr")
	if fn == nil {
		return nil
	}
	return C.call_reg_mr(fn, pd, addr, length, access)
}

func (h *Handle) dispatchDeregMR(mr *C.struct_ibv_mr) C.int {
	fn := h.provider.Symbol("ibv_dereg_mr")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_dereg_mr(fn, mr)
}

func (h *Handle) dispatchDestroyMR(mr *C.struct_ibv_mr) C.int {
	fn := h.provider.Symbol("ibv_destroy_mr")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_destroy_mr(fn, mr)
}

func (h *Handle) dispatchCreateSRQ(pd *C.struct_ibv_pd, attr *C.struct_ibv_srq_init_attr) *C.struct_ibv_srq {
	fn := h.provider.Symbol("ibv_create_srq")
	if fn == nil {
		return nil
	}
	return C.call_create_srq(fn, pd, attr)
}

func (h *Handle) dispatchModifySRQ(srq *C.struct_ibv_srq, attr *C.struct_ibv_srq_attr, mask C.int) C.int {
	fn := h.provider.Symbol("ibv_modify_srq")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_modify_srq(fn, srq, attr, mask)
}

func (h *Handle) dispatchQuerySRQ(srq *C.struct_ibv_srq, attr *C.struct_ibv_srq_attr) C.int {
	fn := h.provider.Symbol("ibv_query_srq")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_query_srq(fn, srq, attr)
}

func (h *Handle) dispatchDestroySRQ(srq *C.struct_ibv_srq) C.int {
	fn := h.provider.Symbol("ibv_destroy_srq")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_destroy_srq(fn, srq)
}

func (h *Handle) dispatchCreateAH(pd *C.struct_ibv_pd, attr *C.struct_ibv_ah_attr) *C.struct_ibv_ah {
	fn := h.provider.Symbol("ibv_create_ah")
	if fn == nil {
		return nil
	}
	return C.call_create_ah(fn, pd, attr)
}

func (h *Handle) dispatchModifyAH(ah *C.struct_ibv_ah, attr *C.struct_ibv_ah_attr) C.int {
	fn := h.provider.Symbol("ibv_modify_ah")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_modify_ah(fn, ah, attr)
}

func (h *Handle) dispatchDestroyAH(ah *C.struct_ibv_ah) C.int {
	fn := h.provider.Symbol("ibv_destroy_ah")
	if fn == nil {
		return errNoProviderErrno
	}
	return C.call_destroy_ah(fn, ah)
}
