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

package ipc

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/pkg/stringid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/formatter"
)

// Server is the coordinator-side half of the legacy line protocol: one
// command per connection, a response line, then close.
type Server struct {
	sockPath string
	ln       net.Listener
	smr      domain.SharedMemoryIface
}

func NewServer(sockPath string, smr domain.SharedMemoryIface) *Server {
	if sockPath == "" {
		sockPath = DefaultSockPath
	}
	return &Server{sockPath: sockPath, smr: smr}
}

// Serve creates the listening socket and accepts connections until Close
// is called. Each connection is handled on its own goroutine, one command
// per connection.
func (s *Server) Serve() error {
	os.Remove(s.sockPath)
	os.MkdirAll(parentDir(s.sockPath), 0755)

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("ipc: failed to listen on %s: %w", s.sockPath, err)
	}
	s.ln = ln

	logrus.Infof("ipc: listening on %s", s.sockPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			logrus.Warnf("ipc: accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	os.Remove(s.sockPath)
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	cid := formatter.ConnID{ID: stringid.GenerateRandomID()}

	uc, _ := conn.(*net.UnixConn)
	peerPid := peerPID(uc)
	logrus.Debugf("ipc: accepted connection %s from %s", cid, formatter.Pid{Value: peerPid})

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimRight(scanner.Text(), "\r\n")

	resp := s.dispatch(line, peerPid)
	conn.Write([]byte(resp))
}

func (s *Server) dispatch(line string, peerPid int32) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return respUnknownRequest
	}

	cmd := fields[0]

	switch {
	case cmd == cmdGetStats:
		return s.getStats()

	case strings.HasPrefix(cmd, cmdGetProcStats+":"):
		pidStr := strings.TrimPrefix(cmd, cmdGetProcStats+":")
		pid, err := strconv.ParseInt(pidStr, 10, 32)
		if err != nil {
			return respUnknownRequest
		}
		return s.getProcStats(int32(pid))

	case cmd == cmdQPCreate:
		return s.qpCreate(peerPid)

	case cmd == cmdQPDestroy:
		return s.qpDestroy(peerPid)

	case cmd == cmdMRCreate:
		return s.mrCreate(peerPid, fields)

	case cmd == cmdCheckMemory:
		return s.checkMemory(peerPid, fields)

	case cmd == cmdMRDestroy:
		return s.mrDestroy(peerPid, fields)

	default:
		return respUnknownRequest
	}
}

func (s *Server) getStats() string {
	global := s.smr.GetGlobal()
	maxQP, maxMR, maxMem := limitsOf(s.smr)

	return fmt.Sprintf(
		"Total QP: %d\nMax QP: %d\nTotal MR: %d\nTotal Memory Used: %d bytes\nMax Memory: %d bytes\n",
		global.QPCount, maxQP, global.MRCount, global.MemoryUsed, maxMem,
	)
}

func (s *Server) getProcStats(pid int32) string {
	u := s.smr.GetProcess(pid)
	return fmt.Sprintf("QP:%d,MR:%d,Memory:%d", u.QPCount, u.MRCount, u.MemoryUsed)
}

func (s *Server) qpCreate(pid int32) string {
	global := s.smr.GetGlobal()
	maxQP, _, _ := limitsOf(s.smr)
	if maxQP > 0 && global.QPCount >= maxQP {
		logrus.Debugf("ipc: QP_CREATE denied for %s: global limit", formatter.Pid{Value: pid})
		return respQPLimitReached
	}

	usage := s.smr.GetProcess(pid)
	usage.QPCount++
	if err := s.smr.UpdateProcess(pid, usage); err != nil {
		logrus.Warnf("ipc: QP_CREATE failed to update process slot for %s: %v", formatter.Pid{Value: pid}, err)
	}

	global.QPCount++
	s.smr.UpdateGlobal(global)

	return respQPCreated
}

func (s *Server) qpDestroy(pid int32) string {
	usage := s.smr.GetProcess(pid)
	if usage.QPCount > 0 {
		usage.QPCount--
		s.smr.UpdateProcess(pid, usage)
	}

	global := s.smr.GetGlobal()
	if global.QPCount > 0 {
		global.QPCount--
		s.smr.UpdateGlobal(global)
	}

	return respQPDestroyed
}

func (s *Server) mrCreate(pid int32, fields []string) string {
	length, ok := parseLength(fields)
	if !ok {
		return respInvalidMRReq
	}

	_, _, maxMem := limitsOf(s.smr)
	global := s.smr.GetGlobal()
	if maxMem > 0 && global.MemoryUsed+length > maxMem {
		return respMemLimitReached
	}

	usage := s.smr.GetProcess(pid)
	usage.MRCount++
	usage.MemoryUsed += length
	s.smr.UpdateProcess(pid, usage)

	global.MRCount++
	global.MemoryUsed += length
	s.smr.UpdateGlobal(global)

	return respMRCreated
}

func (s *Server) checkMemory(pid int32, fields []string) string {
	length, ok := parseLength(fields)
	if !ok {
		return respInvalidMRReq
	}

	_, _, maxMem := limitsOf(s.smr)
	global := s.smr.GetGlobal()
	if maxMem > 0 && global.MemoryUsed+length > maxMem {
		return respMemLimitReached
	}

	return respMemoryChecked
}

func (s *Server) mrDestroy(pid int32, fields []string) string {
	length, ok := parseLength(fields)
	if !ok {
		return respInvalidMRDestroy
	}

	usage := s.smr.GetProcess(pid)
	if usage.MRCount > 0 {
		usage.MRCount--
	}
	if length > usage.MemoryUsed {
		usage.MemoryUsed = 0
	} else {
		usage.MemoryUsed -= length
	}
	s.smr.UpdateProcess(pid, usage)

	global := s.smr.GetGlobal()
	if global.MRCount > 0 {
		global.MRCount--
	}
	if length > global.MemoryUsed {
		global.MemoryUsed = 0
	} else {
		global.MemoryUsed -= length
	}
	s.smr.UpdateGlobal(global)

	return respMRDestroyed
}

func parseLength(fields []string) (uint64, bool) {
	if len(fields) != 2 {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// limitsOf reads the global caps off anything that also exposes a Limits
// method (the concrete shmem.Region); types that only satisfy the
// narrower domain.SharedMemoryIface report zero caps.
func limitsOf(smr domain.SharedMemoryIface) (maxQP, maxMR uint32, maxMem uint64) {
	type limiter interface {
		Limits() (uint32, uint32, uint64)
	}
	if l, ok := smr.(limiter); ok {
		return l.Limits()
	}
	return 0, 0, 0
}

func peerPID(uc *net.UnixConn) int32 {
	if uc == nil {
		return 0
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0
	}

	var pid int32
	raw.Control(func(fd uintptr) {
		cred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err == nil {
			pid = cred.Pid
		}
	})
	return pid
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

var _ domain.IpcServerIface = (*Server)(nil)
