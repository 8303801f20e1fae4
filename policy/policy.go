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

// Package policy loads the per-process PolicyConfig from a key=value
// configuration file and applies the RDMA_INTERCEPT_* environment
// overrides on top of it. Environment wins: it is parsed after the file,
// not before.
package policy

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/envutil"
)

// DefaultConfigPath is used when RDMA_INTERCEPT_CONFIG is unset.
const DefaultConfigPath = "/etc/rdma_intercept.conf"

type service struct {
	mu      sync.RWMutex
	path    string
	current *domain.PolicyConfig
}

// NewService constructs a policy service. Call Load once at shim init.
func NewService() domain.PolicyServiceIface {
	return &service{}
}

func (s *service) Load(path string) (*domain.PolicyConfig, error) {
	if path == "" {
		if envPath, ok := envutil.String("CONFIG"); ok {
			path = envPath
		} else {
			path = DefaultConfigPath
		}
	}

	cfg := DefaultPolicyConfig()
	if err := applyFile(cfg, path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load policy file %s: %w", path, err)
		}
		logrus.Warnf("policy file %s not found, using defaults", path)
	}

	applyEnv(cfg)

	s.mu.Lock()
	s.path = path
	s.current = cfg
	s.mu.Unlock()

	return cfg, nil
}

func (s *service) Reload() (*domain.PolicyConfig, error) {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()

	return s.Load(path)
}

func (s *service) Current() *domain.PolicyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// DefaultPolicyConfig is re-exported under this package so callers that
// only import policy (not domain) can still build a baseline config.
func DefaultPolicyConfig() *domain.PolicyConfig {
	return domain.DefaultPolicyConfig()
}

// applyFile parses a line-oriented key=value file: '#' or ';' start a
// comment, leading/trailing whitespace is stripped, invalid lines are
// logged at WARN and skipped rather than treated as fatal.
func applyFile(cfg *domain.PolicyConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, ok := splitKV(line)
		if !ok {
			logrus.Warnf("%s:%d: malformed line %q, skipping", path, lineNo, line)
			continue
		}

		if err := setField(cfg, key, value); err != nil {
			logrus.Warnf("%s:%d: %v, skipping", path, lineNo, err)
		}
	}

	return scanner.Err()
}

func splitKV(line string) (string, string, bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])
	return key, value, true
}

func setField(cfg *domain.PolicyConfig, key, value string) error {
	switch key {
	case "enable_intercept":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("enable_intercept: %w", err)
		}
		cfg.EnableIntercept = b

	case "enable_qp_control":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("enable_qp_control: %w", err)
		}
		cfg.EnableQPControl = b

	case "enable_mr_control":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("enable_mr_control: %w", err)
		}
		cfg.EnableMRControl = b

	case "allow_rc_qp":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("allow_rc_qp: %w", err)
		}
		cfg.QPAllowed[domain.QPTypeRC] = b

	case "allow_uc_qp":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("allow_uc_qp: %w", err)
		}
		cfg.QPAllowed[domain.QPTypeUC] = b

	case "allow_ud_qp":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("allow_ud_qp: %w", err)
		}
		cfg.QPAllowed[domain.QPTypeUD] = b

	case "max_qp_per_process":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_qp_per_process: %w", err)
		}
		cfg.MaxQPPerProcess = uint32(n)

	case "max_mr_per_process":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_mr_per_process: %w", err)
		}
		cfg.MaxMRPerProcess = uint32(n)

	case "max_memory_per_process":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_memory_per_process: %w", err)
		}
		cfg.MaxMemoryPerProcess = n

	case "max_send_wr_limit":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_send_wr_limit: %w", err)
		}
		cfg.MaxSendWRLimit = uint32(n)

	case "max_recv_wr_limit":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_recv_wr_limit: %w", err)
		}
		cfg.MaxRecvWRLimit = uint32(n)

	case "log_level":
		lvl, ok := domain.ParseLogLevel(value)
		if !ok {
			return fmt.Errorf("log_level: invalid value %q", value)
		}
		cfg.LogLevel = lvl

	case "log_file_path":
		cfg.LogFilePath = value

	case "log_qp_creation":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("log_qp_creation: %w", err)
		}
		cfg.LogQPCreation = b

	case "log_all_operations":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("log_all_operations: %w", err)
		}
		cfg.LogAllOperations = b

	default:
		return fmt.Errorf("unrecognized key %q", key)
	}

	return nil
}

func parseBool(v string) (bool, error) {
	return envutil.ParseBool(v)
}

// applyEnv overlays RDMA_INTERCEPT_* environment variables onto cfg. This
// runs after the file is parsed, so the environment always wins.
func applyEnv(cfg *domain.PolicyConfig) {
	if b, ok := envutil.Bool("ENABLE_QP_CONTROL"); ok {
		cfg.EnableQPControl = b
	}
	if n, ok := envutil.Uint32("MAX_QP_PER_PROCESS"); ok {
		cfg.MaxQPPerProcess = n
	}
	if n, ok := envutil.Uint32("MAX_SEND_WR_LIMIT"); ok {
		cfg.MaxSendWRLimit = n
	}
	if n, ok := envutil.Uint32("MAX_RECV_WR_LIMIT"); ok {
		cfg.MaxRecvWRLimit = n
	}
	if b, ok := envutil.Bool("ALLOW_RC_QP"); ok {
		cfg.QPAllowed[domain.QPTypeRC] = b
	}
	if b, ok := envutil.Bool("ALLOW_UC_QP"); ok {
		cfg.QPAllowed[domain.QPTypeUC] = b
	}
	if b, ok := envutil.Bool("ALLOW_UD_QP"); ok {
		cfg.QPAllowed[domain.QPTypeUD] = b
	}
}

// Enabled reports whether the shim should be active at all, per
// RDMA_INTERCEPT_ENABLE ("1" enables; anything else, including unset,
// disables it entirely).
func Enabled() bool {
	v, ok := envutil.String("ENABLE")
	return ok && v == "1"
}
