//
// Copyright 2020 - 2022 Nestybox, Inc.
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

// Package pidfile writes and checks the coordinator daemon's pid file, to
// avoid a second instance stomping on the same shared memory region.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Create writes process's pid to pidFile. If the file already exists and
// its pid matches a currently-running instance of process, an error is
// returned instead of clobbering it.
func Create(process string, pidFile string) error {
	pid, err := read(pidFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if err == nil && running(process, pid) {
		return fmt.Errorf("%s is already running as pid %d", process, pid)
	}

	pidStr := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(pidFile, []byte(pidStr), 0400); err != nil {
		return fmt.Errorf("failed to write %s pid to file %s: %s", process, pidFile, err)
	}

	return nil
}

// Check is a lighter variant of Create used at startup before the rest of
// the daemon's services are constructed: it fails fast without writing.
func Check(process string, pidFile string) error {
	pid, err := read(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if running(process, pid) {
		return fmt.Errorf("%s process is running as pid %d", process, pid)
	}

	return nil
}

// Destroy removes the pid file. Safe to call even if it was never created.
func Destroy(pidFile string) error {
	return os.RemoveAll(pidFile)
}

func read(pidFile string) (int, error) {
	bs, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(bs)))
}

func running(process string, pid int) bool {
	target, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return false
	}

	base := filepath.Base(target)
	if process != base {
		logrus.Infof("pid %d is not associated with process %s", pid, process)
		return false
	}

	return true
}
