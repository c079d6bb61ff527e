package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_GetRecent_NewestFirst(t *testing.T) {
	m := NewManager(nil)
	m.Info("forge", "first", nil)
	m.Info("forge", "second", nil)
	m.Info("forge", "third", nil)

	entries := m.GetRecent(10, "", "")
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "first", entries[2].Message)
}

func TestGetRecent_FiltersByLevel(t *testing.T) {
	m := NewManager(nil)
	m.Info("forge", "info message", nil)
	m.Error("forge", "error message", nil)

	entries := m.GetRecent(10, LevelError, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "error message", entries[0].Message)
}

func TestGetRecent_FiltersByProjectID(t *testing.T) {
	m := NewManager(nil)
	m.Info("platform", "for proj-a", map[string]interface{}{"project_id": "proj-a"})
	m.Info("platform", "for proj-b", map[string]interface{}{"project_id": "proj-b"})

	entries := m.GetRecent(10, "", "proj-a")
	require.Len(t, entries, 1)
	assert.Equal(t, "for proj-a", entries[0].Message)
}

func TestGetRecent_ClampsOutOfRangeLimit(t *testing.T) {
	m := NewManager(nil)
	m.Info("forge", "only entry", nil)

	entries := m.GetRecent(0, "", "")
	assert.Len(t, entries, 1)

	entries = m.GetRecent(MaxBufferSize+1, "", "")
	assert.Len(t, entries, 1)
}

func TestAddHandler_ReceivesNewEntries(t *testing.T) {
	m := NewManager(nil)
	received := make(chan Entry, 1)
	m.AddHandler(func(e Entry) { received <- e })

	m.Warn("forge", "heads up", nil)

	select {
	case e := <-received:
		assert.Equal(t, "heads up", e.Message)
		assert.Equal(t, LevelWarn, e.Level)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
