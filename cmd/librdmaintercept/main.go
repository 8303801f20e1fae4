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

// librdmaintercept is the LD_PRELOAD shared object itself: built with
// `go build -buildmode=c-shared`, it exports the sixteen intercepted
// verbs entry points under their real libibverbs symbol names.
// Cgo-generated C types are scoped to the package that declares
// them, so this package carries its own `#include <infiniband/verbs.h>`
// preamble and converts every pointer to unsafe.Pointer before handing
// it to the interpose package, which does all of the actual admission,
// dispatch and accounting work.
package main

/*
#include <infiniband/verbs.h>
*/
import "C"

import (
	"unsafe"

	"github.com/rdma-intercept/rdma-intercept/interpose"
)

//export ibv_create_qp
func ibv_create_qp(pd *C.struct_ibv_pd, attr *C.struct_ibv_qp_init_attr) *C.struct_ibv_qp {
	return (*C.struct_ibv_qp)(interpose.CreateQP(unsafe.Pointer(pd), unsafe.Pointer(attr)))
}

//export ibv_destroy_qp
func ibv_destroy_qp(qp *C.struct_ibv_qp) C.int {
	return C.int(interpose.DestroyQP(unsafe.Pointer(qp)))
}

//export ibv_create_cq
func ibv_create_cq(ctx *C.struct_ibv_context, cqe C.int, cqContext unsafe.Pointer,
	channel *C.struct_ibv_comp_channel, compVector C.int) *C.struct_ibv_cq {
	return (*C.struct_ibv_cq)(interpose.CreateCQ(unsafe.Pointer(ctx), int(cqe), cqContext,
		unsafe.Pointer(channel), int(compVector)))
}

//export ibv_destroy_cq
func ibv_destroy_cq(cq *C.struct_ibv_cq) C.int {
	return C.int(interpose.DestroyCQ(unsafe.Pointer(cq)))
}

//export ibv_alloc_pd
func ibv_alloc_pd(ctx *C.struct_ibv_context) *C.struct_ibv_pd {
	return (*C.struct_ibv_pd)(interpose.AllocPD(unsafe.Pointer(ctx)))
}

//export ibv_dealloc_pd
func ibv_dealloc_pd(pd *C.struct_ibv_pd) C.int {
	return C.int(interpose.DeallocPD(unsafe.Pointer(pd)))
}

//export ibv_reg_mr
func ibv_reg_mr(pd *C.struct_ibv_pd, addr unsafe.Pointer, length C.size_t, access C.int) *C.struct_ibv_mr {
	return (*C.struct_ibv_mr)(interpose.RegMR(unsafe.Pointer(pd), addr, uint64(length), int(access)))
}

//export ibv_dereg_mr
func ibv_dereg_mr(mr *C.struct_ibv_mr) C.int {
	return C.int(interpose.DeregMR(unsafe.Pointer(mr)))
}

//export ibv_destroy_mr
func ibv_destroy_mr(mr *C.struct_ibv_mr) C.int {
	return C.int(interpose.DestroyMR(unsafe.Pointer(mr)))
}

//export ibv_create_srq
func ibv_create_srq(pd *C.struct_ibv_pd, attr *C.struct_ibv_srq_init_attr) *C.struct_ibv_srq {
	return (*C.struct_ibv_srq)(interpose.CreateSRQ(unsafe.Pointer(pd), unsafe.Pointer(attr)))
}

//export ibv_modify_srq
func ibv_modify_srq(srq *C.struct_ibv_srq, attr *C.struct_ibv_srq_attr, mask C.int) C.int {
	return C.int(interpose.ModifySRQ(unsafe.Pointer(srq), unsafe.Pointer(attr), int(mask)))
}

//export ibv_query_srq
func ibv_query_srq(srq *C.struct_ibv_srq, attr *C.struct_ibv_srq_attr) C.int {
	return C.int(interpose.QuerySRQ(unsafe.Pointer(srq), unsafe.Pointer(attr)))
}

//export ibv_destroy_srq
func ibv_destroy_srq(srq *C.struct_ibv_srq) C.int {
	return C.int(interpose.DestroySRQ(unsafe.Pointer(srq)))
}

//export ibv_create_ah
func ibv_create_ah(pd *C.struct_ibv_pd, attr *C.struct_ibv_ah_attr) *C.struct_ibv_ah {
	return (*C.struct_ibv_ah)(interpose.CreateAH(unsafe.Pointer(pd), unsafe.Pointer(attr)))
}

//export ibv_modify_ah
func ibv_modify_ah(ah *C.struct_ibv_ah, attr *C.struct_ibv_ah_attr) C.int {
	return C.int(interpose.ModifyAH(unsafe.Pointer(ah), unsafe.Pointer(attr)))
}

//export ibv_destroy_ah
func ibv_destroy_ah(ah *C.struct_ibv_ah) C.int {
	return C.int(interpose.DestroyAH(unsafe.Pointer(ah)))
}

func main() {}
