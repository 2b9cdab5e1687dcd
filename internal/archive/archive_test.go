package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelmale/nexus/internal/protocol"
)

func sampleState() protocol.GameState {
	return protocol.GameState{
		Session: &protocol.Session{
			RoomCode: "AB12",
			Players:  []protocol.Player{{ID: "p1", Name: "GM", Role: protocol.RoleHost}},
		},
		Scenes:        []protocol.Scene{{ID: "sc-1", Name: "Crypt", GridSize: 50}},
		ActiveSceneID: "sc-1",
	}
}

func TestMemorySaveLoadDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Load(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, ok, "empty archive must miss")

	require.NoError(t, m.Save(ctx, "AB12", sampleState()))

	got, ok, err := m.Load(ctx, "AB12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AB12", got.Session.RoomCode)
	require.Len(t, got.Scenes, 1)
	assert.Equal(t, "sc-1", got.ActiveSceneID)

	require.NoError(t, m.Delete(ctx, "AB12"))
	_, ok, err = m.Load(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, ok, "deleted snapshot must miss")
}

func TestMemorySnapshotsAreDetached(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, m.Save(ctx, "AB12", state))

	// Mutating the caller's state after Save must not leak in.
	state.Scenes[0].Name = "mutated"
	state.Session.RoomCode = "mutated"

	got, ok, err := m.Load(ctx, "AB12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Crypt", got.Scenes[0].Name)
	assert.Equal(t, "AB12", got.Session.RoomCode)

	// And mutating a loaded copy must not poison later loads.
	got.Scenes[0].Name = "also mutated"
	again, _, err := m.Load(ctx, "AB12")
	require.NoError(t, err)
	assert.Equal(t, "Crypt", again.Scenes[0].Name)
}

func TestMemoryOverwriteReplaces(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, "AB12", sampleState()))

	next := sampleState()
	next.Scenes = append(next.Scenes, protocol.Scene{ID: "sc-2", Name: "Forest"})
	require.NoError(t, m.Save(ctx, "AB12", next))

	got, ok, err := m.Load(ctx, "AB12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Scenes, 2)
}
