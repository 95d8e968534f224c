package watchdog

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/cuemby/qserver/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain intercepts re-exec'd helper-process invocations before the
// testing framework parses flags, following the os/exec package's own
// TestHelperProcess idiom: Supervisor re-execs os.Args[0] to become the
// Manager/Worker, so the test binary itself must know how to play those
// roles when QSERVER_WATCHDOG_HELPER is set.
func TestMain(m *testing.M) {
	if os.Getenv("QSERVER_WATCHDOG_HELPER") == "1" && len(os.Args) > 1 {
		runHelperProcess(os.Args[1])
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runHelperProcess(role string) {
	switch role {
	case "manager":
		runHelperManager()
	case "worker":
		runHelperWorker()
	}
}

func runHelperManager() {
	conn, err := fileConn(os.NewFile(uintptr(fdWatchdogLink), "link"))
	if err != nil {
		os.Exit(1)
	}
	link := rpc.NewLink(conn, nil, nil)
	link.Start()
	defer link.Close()

	if os.Getenv("QSERVER_HELPER_START_WORKER") == "1" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = link.Call(ctx, "start_re_worker", nil)
		cancel()
	}

	if os.Getenv("QSERVER_HELPER_HEARTBEAT") == "1" {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if err := link.Notify("heartbeat", nil); err != nil {
				return
			}
		}
		return
	}

	select {}
}

func runHelperWorker() {
	f := os.NewFile(uintptr(fdWorkerPipe), "worker-pipe")
	_, _ = io.Copy(io.Discard, f)
}

func testSelfPath(t *testing.T) string {
	t.Helper()
	path, err := os.Executable()
	require.NoError(t, err)
	return path
}

func newTestSupervisor(t *testing.T, env ...string) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(Config{SelfPath: testSelfPath(t)})
	require.NoError(t, err)

	t.Setenv("QSERVER_WATCHDOG_HELPER", "1")
	for i := 0; i+1 < len(env); i += 2 {
		t.Setenv(env[i], env[i+1])
	}

	t.Cleanup(s.Shutdown)
	return s
}

func TestSupervisorSpawnsManagerAndTracksHeartbeat(t *testing.T) {
	s := newTestSupervisor(t, "QSERVER_HELPER_HEARTBEAT", "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return time.Since(s.lastHeartbeat) < HeartbeatMinGap
	}, 2*time.Second, 10*time.Millisecond, "expected heartbeat to keep lastHeartbeat fresh")
}

func TestSupervisorRestartsManagerOnHeartbeatGap(t *testing.T) {
	s := newTestSupervisor(t, "QSERVER_HELPER_HEARTBEAT", "0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	s.mu.Lock()
	firstPID := s.managerCmd.Process.Pid
	s.mu.Unlock()

	s.mu.Lock()
	s.lastHeartbeat = time.Now().Add(-2 * HeartbeatMinGap)
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.managerCmd != nil && s.managerCmd.Process.Pid != firstPID
	}, 3*time.Second, 20*time.Millisecond, "expected manager to be respawned after a heartbeat gap")
}

func TestSupervisorStartReWorkerSpawnsWorkerProcess(t *testing.T) {
	s := newTestSupervisor(t, "QSERVER_HELPER_HEARTBEAT", "1", "QSERVER_HELPER_START_WORKER", "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.workerCmd != nil
	}, 2*time.Second, 10*time.Millisecond, "expected start_re_worker to spawn a worker process")

	reply, err := s.isWorkerAlive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"worker_alive":true}`, string(reply))

	_, err = s.killReWorker()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		cmd := s.workerCmd
		s.mu.Unlock()
		return !processAlive(cmd)
	}, 2*time.Second, 20*time.Millisecond, "expected kill_re_worker to terminate the worker process")
}
