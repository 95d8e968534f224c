package worker

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/cuemby/qserver/pkg/queue"
	"github.com/cuemby/qserver/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerSide struct {
	link         *rpc.Link
	planStatuses chan map[string]interface{}
	ready        chan struct{}
}

func newManagerSide(conn net.Conn) *managerSide {
	m := &managerSide{
		planStatuses: make(chan map[string]interface{}, 16),
		ready:        make(chan struct{}, 1),
	}
	m.link = rpc.NewLink(conn, nil, m.onNotify)
	m.link.Start()
	return m
}

func (m *managerSide) onNotify(method string, params json.RawMessage) {
	switch method {
	case "environment_ready":
		select {
		case m.ready <- struct{}{}:
		default:
		}
	case "plan_status":
		var payload map[string]interface{}
		_ = json.Unmarshal(params, &payload)
		m.planStatuses <- payload
	}
}

func newTestWorker(t *testing.T) (*Worker, *managerSide) {
	t.Helper()
	workerConn, managerConn := net.Pipe()

	w := New(Config{
		ManagerConn:       workerConn,
		StartupDelay:      time.Millisecond,
		HeartbeatInterval: time.Hour,
	})
	w.Start()
	t.Cleanup(func() { w.Stop() })

	m := newManagerSide(managerConn)

	select {
	case <-m.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for environment_ready")
	}

	return w, m
}

func TestWorkerRunPlanCompletes(t *testing.T) {
	_, m := newTestWorker(t)

	item := &queue.Item{
		UID: queue.NewUID(),
		Kwargs: map[string]interface{}{
			"num_steps": float64(2), "step_duration_ms": float64(5),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := m.link.Call(ctx, "run_plan", map[string]interface{}{"item": item})
	require.NoError(t, err)

	payload := awaitStatus(t, m, "running")
	assert.Equal(t, item.UID, payload["uid"])

	payload = awaitStatus(t, m, "completed")
	assert.Equal(t, item.UID, payload["uid"])
}

func TestWorkerStatus(t *testing.T) {
	_, m := newTestWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := m.link.Call(ctx, "status", nil)
	require.NoError(t, err)

	var status statusReply
	require.NoError(t, json.Unmarshal(reply, &status))
	assert.Equal(t, "idle", status.ExecState)
}

func TestWorkerPauseResume(t *testing.T) {
	_, m := newTestWorker(t)

	item := &queue.Item{
		UID: queue.NewUID(),
		Kwargs: map[string]interface{}{
			"num_steps": float64(10), "step_duration_ms": float64(20),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.link.Call(ctx, "run_plan", map[string]interface{}{"item": item})
	require.NoError(t, err)
	awaitStatus(t, m, "running")

	_, err = m.link.Call(ctx, "pause", map[string]interface{}{"mode": "deferred"})
	require.NoError(t, err)
	awaitStatus(t, m, "paused")

	_, err = m.link.Call(ctx, "resume", nil)
	require.NoError(t, err)
	awaitStatus(t, m, "completed")
}

func TestWorkerShutdown(t *testing.T) {
	w, m := newTestWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := m.link.Call(ctx, "shutdown", nil)
	require.NoError(t, err)

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not signal done after shutdown")
	}
}

func awaitStatus(t *testing.T, m *managerSide, status string) map[string]interface{} {
	t.Helper()
	for {
		select {
		case payload := <-m.planStatuses:
			if payload["status"] == status {
				return payload
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for plan_status=%s", status)
		}
	}
}
