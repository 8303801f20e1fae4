package ipc_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdma-intercept/rdma-intercept/ipc"
	"github.com/rdma-intercept/rdma-intercept/shmem"
)

func startTestServer(t *testing.T) (*ipc.Client, func()) {
	t.Helper()

	region, err := shmem.Init(fmt.Sprintf("rdma_intercept_ipctest_%d", os.Getpid()), 1000, 10000, 1<<40)
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "coordinator.sock")
	server := ipc.NewServer(sockPath, region)

	go server.Serve()
	time.Sleep(50 * time.Millisecond) // let the listener come up

	client := ipc.NewClient(sockPath)

	cleanup := func() {
		server.Close()
		region.Close()
		os.Remove("/dev/shm/rdma_intercept_ipctest_" + fmt.Sprint(os.Getpid()))
	}
	return client, cleanup
}

func TestQPCreateAndDestroyRoundTrip(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	ok, resp, err := client.QPCreate()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Success: QP created\n", resp)

	resp, err = client.QPDestroy()
	require.NoError(t, err)
	assert.Equal(t, "Success: QP destroyed\n", resp)
}

func TestMRCreateAndDestroyRoundTrip(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	ok, resp, err := client.MRCreate(4096)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Success: MR created\n", resp)

	resp, err = client.MRDestroy(4096)
	require.NoError(t, err)
	assert.Equal(t, "Success: MR destroyed\n", resp)
}

func TestCheckMemory(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	ok, resp, err := client.CheckMemory(1024)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Success: Memory check passed\n", resp)
}

func TestGetStats(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	client.MRCreate(2048)

	resp, err := client.GetStats()
	require.NoError(t, err)
	assert.Contains(t, resp, "Total MR: 1")
	assert.Contains(t, resp, "Total Memory Used: 2048 bytes")
}
