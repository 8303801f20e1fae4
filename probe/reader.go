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

// Package probe reads the kernel probe's two maps (KPM): a best-effort,
// eventually-consistent snapshot of kernel-observed QP/MR create and
// destroy events. The kernel side is out of scope here — this package
// only reads the pinned files it produces.
package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

// DefaultPinDir is the well-known pinned path the kernel probe publishes
// its two maps under.
const DefaultPinDir = "/sys/fs/bpf/rdma_intercept"

// ErrMapNotPresent is returned alongside an empty, zero-valued result
// when a pinned map file does not exist yet - e.g. the kernel probe
// hasn't attached, or the coordinator started before it did. Callers
// treat the accompanying result as authoritative (zeroes, not
// "unknown") but still get a distinguishable error to log.
var ErrMapNotPresent = errors.New("probe: map file not present")

const (
	globalMapFile  = "global_resources"
	processMapFile = "process_resources"

	recordSize = 4 + 4 + 4 + 8 // pid/key + qp + mr + mem, little endian
)

// FileReader reads the two pinned map files directly. Each record is a
// fixed-width little-endian tuple: key(uint32), qp(uint32), mr(uint32),
// mem(uint64). The global map has a single record at key 0.
type FileReader struct {
	dir string
}

func NewFileReader(dir string) *FileReader {
	if dir == "" {
		dir = DefaultPinDir
	}
	return &FileReader{dir: dir}
}

func (r *FileReader) ReadGlobal() (domain.ResourceUsage, error) {
	recs, err := readRecords(filepath.Join(r.dir, globalMapFile))
	if err != nil && !errors.Is(err, ErrMapNotPresent) {
		return domain.ResourceUsage{}, err
	}
	for key, u := range recs {
		if key == 0 {
			return u, err
		}
	}
	return domain.ResourceUsage{}, err
}

func (r *FileReader) ReadProcess(pid uint32) (domain.ResourceUsage, bool, error) {
	recs, err := readRecords(filepath.Join(r.dir, processMapFile))
	if err != nil && !errors.Is(err, ErrMapNotPresent) {
		return domain.ResourceUsage{}, false, err
	}
	u, ok := recs[pid]
	return u, ok, err
}

func (r *FileReader) ReadAllProcesses() (map[uint32]domain.ResourceUsage, error) {
	return readRecords(filepath.Join(r.dir, processMapFile))
}

func readRecords(path string) (map[uint32]domain.ResourceUsage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The probe map is not present yet (scenario D). The result is
			// still an empty, non-fatal record set - callers don't treat
			// this as a transient read failure - but ErrMapNotPresent lets
			// the synchronizer log it instead of silently reading zeroes.
			return map[uint32]domain.ResourceUsage{}, ErrMapNotPresent
		}
		return nil, fmt.Errorf("probe: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("probe: failed to stat %s: %w", path, err)
	}

	n := int(info.Size()) / recordSize
	out := make(map[uint32]domain.ResourceUsage, n)
	buf := make([]byte, recordSize)

	for i := 0; i < n; i++ {
		if _, err := f.Read(buf); err != nil {
			return out, fmt.Errorf("probe: short read on %s at record %d: %w", path, i, err)
		}
		key := binary.LittleEndian.Uint32(buf[0:4])
		qp := binary.LittleEndian.Uint32(buf[4:8])
		mr := binary.LittleEndian.Uint32(buf[8:12])
		mem := binary.LittleEndian.Uint64(buf[12:20])
		out[key] = domain.ResourceUsage{QPCount: qp, MRCount: mr, MemoryUsed: mem}
	}

	return out, nil
}

var _ domain.ProbeReaderIface = (*FileReader)(nil)
