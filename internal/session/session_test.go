package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leadboard/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestManager_LoggedOutByDefault(t *testing.T) {
	store, _ := openStore(t)
	m := NewManager(store, zerolog.Nop())

	require.NoError(t, m.Init(context.Background()))
	assert.Nil(t, m.Current())
	assert.Nil(t, m.User())
	assert.Empty(t, m.Token())
}

func TestManager_BeginPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)
	m := NewManager(store, zerolog.Nop())
	require.NoError(t, m.Init(ctx))

	user := models.User{ID: "u1", Username: "asha", Name: "Asha", Role: models.RoleSalesTeam}
	require.NoError(t, m.Begin(ctx, user, "tok-1"))
	assert.Equal(t, "tok-1", m.Token())
	assert.Equal(t, "Asha", m.User().Name)

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	m2 := NewManager(reopened, zerolog.Nop())
	require.NoError(t, m2.Init(ctx))
	require.NotNil(t, m2.Current())
	assert.Equal(t, "tok-1", m2.Token())
	assert.Equal(t, models.RoleSalesTeam, m2.User().Role)
}

func TestManager_Teardown(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	m := NewManager(store, zerolog.Nop())
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Begin(ctx, models.User{ID: "u1"}, "tok-1"))

	require.NoError(t, m.Teardown(ctx))
	assert.Nil(t, m.Current())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Tearing down twice is harmless
	require.NoError(t, m.Teardown(ctx))
}

func TestManager_CurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)
	m := NewManager(store, zerolog.Nop())
	require.NoError(t, m.Begin(ctx, models.User{ID: "u1", Name: "Asha"}, "tok-1"))

	s := m.Current()
	s.Token = "changed"
	s.User.Name = "changed"

	assert.Equal(t, "tok-1", m.Token())
	assert.Equal(t, "Asha", m.User().Name)
}

func TestSQLiteStore_CorruptRowIsLoggedOut(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	_, err := store.db.Exec("INSERT INTO local_storage (key, value) VALUES (?, ?)", sessionKey, "{not json")
	require.NoError(t, err)

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
