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

// Symbol interposition is a host-ABI concern, not a language feature:
// resolving the "real" verbs entry point means asking the platform's dynamic
// linker for the next definition of a symbol already loaded into this
// process. Go's runtime does not expose dlopen/dlsym directly, so this
// file is the one place in the module that drops to cgo against
// <dlfcn.h> — everything above it deals only in the Go-native Provider
// interface.
package interpose

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// providerLibName is the verbs provider every RDMA application already
// has loaded.
const providerLibName = "libibverbs.so.1"

// verbsSymbols is the resource-affecting subset of the verbs surface this
// module interposes on.
var verbsSymbols = []string{
	"ibv_create_qp", "ibv_destroy_qp",
	"ibv_create_cq", "ibv_destroy_cq",
	"ibv_alloc_pd", "ibv_dealloc_pd",
	"ibv_reg_mr", "ibv_dereg_mr", "ibv_destroy_mr",
	"ibv_create_srq", "ibv_modify_srq", "ibv_query_srq", "ibv_destroy_srq",
	"ibv_create_ah", "ibv_modify_ah", "ibv_destroy_ah",
}

// Provider holds the resolved entry points of the real verbs provider.
// A nil entry for a given name means the symbol could not be resolved
// (e.g. it is header-inlined in the provider, such as ibv_create_qp_ex
// inlining a call to ibv_create_qp) — that entry point is marked
// unsupported but does not fail the rest of init.
type Provider struct {
	handle  unsafe.Pointer
	symbols map[string]unsafe.Pointer
}

// loadProvider opens the verbs provider library and resolves every
// symbol in verbsSymbols it can find. It returns an error only when the
// library itself cannot be opened at all — at which point every wrapper
// must return "function not implemented" rather than silently no-op a
// call that would otherwise have succeeded.
func loadProvider() (*Provider, error) {
	cname := C.CString(providerLibName)
	defer C.free(unsafe.Pointer(cname))

	h := C.dlopen(cname, C.RTLD_LAZY|C.RTLD_GLOBAL)
	if h == nil {
		return nil, fmt.Errorf("interpose: dlopen(%s) failed: %s", providerLibName, dlerror())
	}

	p := &Provider{handle: h, symbols: make(map[string]unsafe.Pointer, len(verbsSymbols))}

	for _, name := range verbsSymbols {
		csym := C.CString(name)
		sym := C.dlsym(h, csym)
		C.free(unsafe.Pointer(csym))

		if sym == nil {
			// Unresolved: this entry point is inline-only in this build of
			// the provider. Leave it absent from the map; Resolved reports
			// false and the wrapper falls through to provider behavior as
			// best it can.
			continue
		}
		p.symbols[name] = sym
	}

	return p, nil
}

func dlerror() string {
	msg := C.dlerror()
	if msg == nil {
		return "unknown error"
	}
	return C.GoString(msg)
}

// Resolved reports whether name was found in the provider.
func (p *Provider) Resolved(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.symbols[name]
	return ok
}

// Symbol returns the resolved address for name, or nil if unresolved.
// The dispatch* methods in dispatch.go call through it with a C
// trampoline that casts it back to the entry point's real signature.
func (p *Provider) Symbol(name string) unsafe.Pointer {
	if p == nil {
		return nil
	}
	return p.symbols[name]
}
