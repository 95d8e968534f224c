package controlchannel

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "ping":
		return json.Marshal(map[string]interface{}{"success": true, "msg": "pong"})
	case "reject":
		return json.Marshal(map[string]interface{}{"success": false, "msg": "rejected"})
	}
	return nil, nil
}

func startTestServer(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "qserver.sock")

	srv := NewServer(echoHandler)
	go srv.Serve(sockPath)
	t.Cleanup(func() { srv.Close() })

	require.Eventually(t, func() bool {
		c, err := Dial(sockPath)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return sockPath
}

func TestClientCallSuccess(t *testing.T) {
	sockPath := startTestServer(t)

	c, err := Dial(sockPath)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call("ping", nil, time.Second)
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "pong", reply.Msg)
	assert.Equal(t, ExitSuccess, ExitCodeFor(reply, err))
}

func TestClientCallRejected(t *testing.T) {
	sockPath := startTestServer(t)

	c, err := Dial(sockPath)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call("reject", nil, time.Second)
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, ExitRejected, ExitCodeFor(reply, err))
}

func TestClientCallTimeout(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "qserver.sock")

	blocking := func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
		select {}
	}
	srv := NewServer(blocking)
	go srv.Serve(sockPath)
	t.Cleanup(func() { srv.Close() })

	require.Eventually(t, func() bool {
		c, err := Dial(sockPath)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	c, err := Dial(sockPath)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call("slow", nil, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, ExitTimeout, ExitCodeFor(reply, err))
}

func TestMultipleClientsServedConcurrently(t *testing.T) {
	sockPath := startTestServer(t)

	clients := make([]*Client, 5)
	for i := range clients {
		c, err := Dial(sockPath)
		require.NoError(t, err)
		defer c.Close()
		clients[i] = c
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			reply, err := c.Call("ping", nil, time.Second)
			if assert.NoError(t, err) {
				assert.True(t, reply.Success)
			}
		}(c)
	}
	wg.Wait()
}
