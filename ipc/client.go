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
	"strings"
	"time"

	"github.com/rdma-intercept/rdma-intercept/domain"
)

// Client dials the coordinator's socket once per request: open, write,
// read, close. Used both by the operator CLI and by the interposer's
// SMR-unavailable fallback path.
type Client struct {
	sockPath string
	timeout  time.Duration
}

func NewClient(sockPath string) *Client {
	if sockPath == "" {
		sockPath = DefaultSockPath
	}
	return &Client{sockPath: sockPath, timeout: 2 * time.Second}
}

func (c *Client) roundTrip(req string) (string, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, c.timeout)
	if err != nil {
		return "", fmt.Errorf("ipc: dial %s: %w", c.sockPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := fmt.Fprintf(conn, "%s\n", req); err != nil {
		return "", fmt.Errorf("ipc: write: %w", err)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("ipc: read: %w", err)
	}

	return sb.String(), nil
}

func (c *Client) GetStats() (string, error) {
	return c.roundTrip(cmdGetStats)
}

func (c *Client) GetProcStats(pid int32) (string, error) {
	return c.roundTrip(fmt.Sprintf("%s:%d", cmdGetProcStats, pid))
}

func (c *Client) QPCreate() (bool, string, error) {
	resp, err := c.roundTrip(cmdQPCreate)
	if err != nil {
		return false, resp, err
	}
	return resp == respQPCreated, resp, nil
}

func (c *Client) QPDestroy() (string, error) {
	return c.roundTrip(cmdQPDestroy)
}

func (c *Client) MRCreate(length uint64) (bool, string, error) {
	resp, err := c.roundTrip(fmt.Sprintf("%s %d", cmdMRCreate, length))
	if err != nil {
		return false, resp, err
	}
	return resp == respMRCreated, resp, nil
}

func (c *Client) CheckMemory(length uint64) (bool, string, error) {
	resp, err := c.roundTrip(fmt.Sprintf("%s %d", cmdCheckMemory, length))
	if err != nil {
		return false, resp, err
	}
	return resp == respMemoryChecked, resp, nil
}

func (c *Client) MRDestroy(length uint64) (string, error) {
	return c.roundTrip(fmt.Sprintf("%s %d", cmdMRDestroy, length))
}

func (c *Client) Close() error {
	return nil
}

var _ domain.IpcClientIface = (*Client)(nil)
