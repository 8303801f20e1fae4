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

package domain

// LogLevel mirrors the log-level vocabulary accepted by the policy config
// file and by the coordinator's CLI flags.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "DEBUG", "debug":
		return LogDebug, true
	case "INFO", "info":
		return LogInfo, true
	case "WARN", "warn", "WARNING", "warning":
		return LogWarn, true
	case "ERROR", "error":
		return LogError, true
	case "FATAL", "fatal":
		return LogFatal, true
	default:
		return LogInfo, false
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// PolicyConfig is the per-process configuration loaded once at shim init
// and only ever mutated via an explicit reload.
type PolicyConfig struct {
	EnableIntercept  bool
	EnableQPControl  bool
	EnableMRControl  bool

	// QPAllowed holds the admission bit for each queue-pair transport type.
	QPAllowed map[QPType]bool

	MaxQPPerProcess    uint32
	MaxMRPerProcess     uint32
	MaxMemoryPerProcess uint64
	MaxSendWRLimit      uint32
	MaxRecvWRLimit      uint32

	LogLevel        LogLevel
	LogFilePath     string
	LogQPCreation   bool
	LogAllOperations bool
}

// DefaultPolicyConfig returns the conservative baseline a process starts
// with before any file or environment override is applied.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		EnableIntercept: true,
		EnableQPControl: false,
		EnableMRControl: false,
		QPAllowed: map[QPType]bool{
			QPTypeRC:    true,
			QPTypeUC:    true,
			QPTypeUD:    true,
			QPTypeOther: false,
		},
		MaxQPPerProcess:     100,
		MaxMRPerProcess:     1000,
		MaxMemoryPerProcess: 10 << 30, // 10 GiB
		MaxSendWRLimit:      4096,
		MaxRecvWRLimit:      4096,
		LogLevel:            LogInfo,
		LogFilePath:         "",
		LogQPCreation:       false,
		LogAllOperations:    false,
	}
}
