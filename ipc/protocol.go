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

// Package ipc implements the legacy line protocol (LIP, C9): a
// client and server pair talking over a host-local unix stream socket.
// One request per connection, newline-terminated. This is a
// compatibility facade retained for tests and legacy clients; the
// interposer's primary path talks to the shared memory region directly
// and only falls back to this socket when the region is unavailable.
package ipc

// DefaultSockPath is the well-known host-local coordinator socket.
const DefaultSockPath = "/run/rdma_intercept/coordinator.sock"

const (
	cmdGetStats      = "GET_STATS"
	cmdGetProcStats  = "GET_PROC_STATS"
	cmdQPCreate      = "QP_CREATE"
	cmdQPDestroy     = "QP_DESTROY"
	cmdMRCreate      = "MR_CREATE"
	cmdCheckMemory   = "CHECK_MEMORY"
	cmdMRDestroy     = "MR_DESTROY"
)

const (
	respQPCreated       = "Success: QP created\n"
	respQPDestroyed     = "Success: QP destroyed\n"
	respMRCreated       = "Success: MR created\n"
	respMemoryChecked   = "Success: Memory check passed\n"
	respMRDestroyed     = "Success: MR destroyed\n"
	respQPLimitReached  = "Error: QP limit reached\n"
	respMemLimitReached = "Error: Memory limit reached\n"
	respInvalidMRReq    = "Error: Invalid MR_CREATE request\n"
	respInvalidMRDestroy = "Error: Invalid MR_DESTROY request\n"
	respUnknownRequest  = "Error: Unknown request\n"
)
