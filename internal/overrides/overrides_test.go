package overrides

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldays/internal/model"
)

func TestManagerCRUD(t *testing.T) {
	m := NewManager(NewMemStore())

	assert.Empty(t, m.All())

	require.NoError(t, m.Set("2025-09-10", model.ScheduleWedLate))
	require.NoError(t, m.Set("2025-09-11", model.ScheduleDefault))

	v, ok := m.Get("2025-09-10")
	assert.True(t, ok)
	assert.Equal(t, model.ScheduleWedLate, v)

	require.NoError(t, m.Remove("2025-09-10"))
	_, ok = m.Get("2025-09-10")
	assert.False(t, ok)
	assert.Len(t, m.All(), 1)

	require.NoError(t, m.Clear())
	assert.Empty(t, m.All())
}

func TestManagerMalformedStoreReadsEmpty(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Set(StoreKey, "{not json"))

	m := NewManager(store)
	assert.Empty(t, m.All())

	// A write through the manager repairs the mapping.
	require.NoError(t, m.Set("2025-09-10", model.ScheduleDefault))
	assert.Len(t, m.All(), 1)
}

func TestParseCustom(t *testing.T) {
	sched, ok := ParseCustom(`CUSTOM:[{"id":"01","label":"P1","start":"09:00","end":"10:00","include":true}]`)
	require.True(t, ok)
	require.Len(t, sched, 1)
	assert.Equal(t, "P1", sched[0].Label)
	assert.Equal(t, model.Clock{Hour: 9}, sched[0].Start)
	assert.True(t, sched[0].Include)

	_, ok = ParseCustom("CUSTOM:{broken")
	assert.False(t, ok)

	_, ok = ParseCustom(model.ScheduleWedLate)
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "overrides.json")
	s := NewFileStore(path)

	_, ok, err := s.Get(StoreKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(StoreKey, `{"2025-09-10":"WED_LATE"}`))

	// Reopen to prove persistence.
	s2 := NewFileStore(path)
	v, ok, err := s2.Get(StoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"2025-09-10":"WED_LATE"}`, v)

	require.NoError(t, s2.Delete(StoreKey))
	_, ok, err = s2.Get(StoreKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
