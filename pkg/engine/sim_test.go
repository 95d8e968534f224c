package engine

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/qserver/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastItem(name string) *queue.Item {
	return &queue.Item{
		UID:  queue.NewUID(),
		Name: name,
		Kwargs: map[string]interface{}{
			"num_steps":        float64(3),
			"step_duration_ms": float64(10),
		},
	}
}

func TestSimEngineCompletes(t *testing.T) {
	e := NewSimEngine()
	ctrl := NewControl()

	status, result, err := e.Execute(context.Background(), fastItem("count"), ctrl, nil)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, status)
	assert.Equal(t, 3, result["steps_completed"])
}

func TestSimEngineStop(t *testing.T) {
	e := NewSimEngine()
	ctrl := NewControl()

	go func() {
		time.Sleep(15 * time.Millisecond)
		ctrl.Stop()
	}()

	item := &queue.Item{UID: queue.NewUID(), Kwargs: map[string]interface{}{
		"num_steps": float64(100), "step_duration_ms": float64(10),
	}}
	status, _, err := e.Execute(context.Background(), item, ctrl, nil)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusStopped, status)
}

func TestSimEngineAbort(t *testing.T) {
	e := NewSimEngine()
	ctrl := NewControl()

	go func() {
		time.Sleep(15 * time.Millisecond)
		ctrl.Abort()
	}()

	item := &queue.Item{UID: queue.NewUID(), Kwargs: map[string]interface{}{
		"num_steps": float64(100), "step_duration_ms": float64(10),
	}}
	status, _, err := e.Execute(context.Background(), item, ctrl, nil)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusAborted, status)
}

func TestSimEnginePauseResume(t *testing.T) {
	e := NewSimEngine()
	ctrl := NewControl()
	paused := make(chan struct{})

	go func() {
		time.Sleep(15 * time.Millisecond)
		ctrl.Pause(PauseDeferred)
	}()
	go func() {
		<-paused
		time.Sleep(15 * time.Millisecond)
		ctrl.Resume()
	}()

	item := &queue.Item{UID: queue.NewUID(), Kwargs: map[string]interface{}{
		"num_steps": float64(5), "step_duration_ms": float64(10),
	}}
	status, result, err := e.Execute(context.Background(), item, ctrl, func() { close(paused) })
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, status)
	assert.Equal(t, 5, result["steps_completed"])
}

func TestSimEngineContextCancel(t *testing.T) {
	e := NewSimEngine()
	ctrl := NewControl()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	item := &queue.Item{UID: queue.NewUID(), Kwargs: map[string]interface{}{
		"num_steps": float64(100), "step_duration_ms": float64(10),
	}}
	status, _, err := e.Execute(ctx, item, ctrl, nil)
	assert.Error(t, err)
	assert.Equal(t, queue.StatusFailed, status)
}
