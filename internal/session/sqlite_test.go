// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	require.Error(t, err)
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	snap := Snapshot{
		SessionID:    "s1",
		ProjectState: map[string]interface{}{"phase": "init", "count": float64(3)},
		Context: Context{
			CurrentProject: "proj-1",
			Preferences:    map[string]interface{}{"theme": "dark"},
		},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.SessionID, got.SessionID)
	assert.Equal(t, snap.ProjectState, got.ProjectState)
	assert.Equal(t, snap.Context, got.Context)
	assert.True(t, snap.Timestamp.Equal(got.Timestamp))
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Snapshot{
		SessionID: "s1",
		Context:   Context{CurrentProject: "old"},
		Timestamp: time.Now(),
	}))
	require.NoError(t, store.Save(ctx, Snapshot{
		SessionID: "s1",
		Context:   Context{CurrentProject: "new"},
		Timestamp: time.Now(),
	}))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Context.CurrentProject)
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	got, err := store.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Snapshot{
		SessionID: "s1",
		Timestamp: time.Now(),
	}))
	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"), "deleting a missing snapshot is not an error")

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, Snapshot{
		SessionID: "s1",
		Context:   Context{CurrentProject: "proj-1"},
		Timestamp: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "proj-1", got.Context.CurrentProject)
}
