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

// Package envutil centralizes the RDMA_INTERCEPT_* environment overrides
// so both the shim and the coordinator parse them identically.
package envutil

import (
	"os"
	"strconv"
	"strings"
)

const Prefix = "RDMA_INTERCEPT_"

// Bool looks up Prefix+name and, if set, parses it with the same
// true/false/yes/no/on/off/1/0 vocabulary as the policy file.
func Bool(name string) (bool, bool) {
	v, ok := os.LookupEnv(Prefix + name)
	if !ok {
		return false, false
	}
	b, err := ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Uint32 looks up Prefix+name and parses it as a base-10 uint32.
func Uint32(name string) (uint32, bool) {
	v, ok := os.LookupEnv(Prefix + name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Uint64 looks up Prefix+name and parses it as a base-10 uint64.
func Uint64(name string) (uint64, bool) {
	v, ok := os.LookupEnv(Prefix + name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String looks up Prefix+name verbatim.
func String(name string) (string, bool) {
	return os.LookupEnv(Prefix + name)
}

// ParseBool accepts the case-insensitive vocabulary the policy file also
// uses: true/false, yes/no, on/off, 1/0.
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return strconv.ParseBool(v)
	}
}
