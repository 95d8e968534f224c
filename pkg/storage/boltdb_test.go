package storage

import (
	"testing"

	"github.com/cuemby/qserver/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)

	items := []*queue.Item{
		{UID: "a", Name: "count"},
		{UID: "b", Name: "scan"},
	}
	require.NoError(t, s.SaveQueue(items))

	got, err := s.LoadQueue()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UID)
	assert.Equal(t, "b", got[1].UID)
}

func TestBoltStoreQueueOverwrite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveQueue([]*queue.Item{{UID: "a"}, {UID: "b"}}))
	require.NoError(t, s.SaveQueue([]*queue.Item{{UID: "c"}}))

	got, err := s.LoadQueue()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].UID)
}

func TestBoltStoreHistoryAppendAndClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AppendHistory(&queue.HistoryEntry{Item: queue.Item{UID: "a"}, Status: queue.StatusCompleted}))
	require.NoError(t, s.AppendHistory(&queue.HistoryEntry{Item: queue.Item{UID: "b"}, Status: queue.StatusFailed}))

	got, err := s.LoadHistory()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, queue.StatusCompleted, got[0].Status)
	assert.Equal(t, queue.StatusFailed, got[1].Status)

	require.NoError(t, s.ClearHistory())
	got, err = s.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBoltStoreRunningItem(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadRunning()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveRunning(&queue.Item{UID: "a"}))
	got, err = s.LoadRunning()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.UID)

	require.NoError(t, s.SaveRunning(nil))
	got, err = s.LoadRunning()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBoltStoreEnvState(t *testing.T) {
	s := openTestStore(t)

	state, err := s.LoadEnvState()
	require.NoError(t, err)
	assert.Equal(t, EnvClosed, state)

	require.NoError(t, s.SaveEnvState(EnvOpen))
	state, err = s.LoadEnvState()
	require.NoError(t, err)
	assert.Equal(t, EnvOpen, state)
}
