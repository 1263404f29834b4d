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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock for expiry tests.
type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time          { return c.current }
func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestManager(cfg Config) (*Manager, *testClock) {
	clock := &testClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(cfg, NewMemoryStore(), nil)
	m.now = clock.Now
	return m, clock
}

func TestCreate_Defaults(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())

	sess := m.Create(ClientInfo{Name: "cli", Version: "1.0"})

	require.NotEmpty(t, sess.ID)
	assert.True(t, sess.Active)
	assert.Equal(t, Capabilities{Tools: true}, sess.Capabilities)
	assert.Equal(t, "cli", sess.Client.Name)
	assert.Equal(t, sess.CreatedAt, sess.LastActivity)

	other := m.Create(ClientInfo{})
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestGet_Unknown(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	assert.Nil(t, m.Get("missing"))
}

func TestGet_RefreshesActivity(t *testing.T) {
	m, clock := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	clock.Advance(10 * time.Minute)
	got := m.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, clock.Now(), got.LastActivity)

	// The refresh keeps the session alive past what the original
	// creation time alone would allow.
	clock.Advance(25 * time.Minute)
	assert.NotNil(t, m.Get(sess.ID))
}

func TestGet_ExpiredAtBoundary(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 30 * time.Minute})
	sess := m.Create(ClientInfo{})

	// Exactly at the timeout counts as expired.
	clock.Advance(30 * time.Minute)
	assert.Nil(t, m.Get(sess.ID))

	// Expiry marked the session inactive; it stays gone even if the
	// clock were rolled back.
	clock.Advance(-29 * time.Minute)
	assert.Nil(t, m.Get(sess.ID))
}

func TestGet_ZeroTimeoutExpiresImmediately(t *testing.T) {
	m, _ := newTestManager(Config{IdleTimeout: 0})
	sess := m.Create(ClientInfo{})

	assert.Nil(t, m.Get(sess.ID))
}

func TestUpdateCapabilities_PartialMerge(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	yes := true
	require.True(t, m.UpdateCapabilities(sess.ID, CapabilityPatch{Resources: &yes}))

	got := m.Get(sess.ID)
	require.NotNil(t, got)
	assert.True(t, got.Capabilities.Tools, "untouched flag survives the patch")
	assert.True(t, got.Capabilities.Resources)
	assert.False(t, got.Capabilities.Prompts)

	assert.False(t, m.UpdateCapabilities("missing", CapabilityPatch{Tools: &yes}))
}

func TestUpdateContext_PreferencesMergedByKey(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	require.True(t, m.UpdateContext(sess.ID, ContextPatch{
		Preferences: map[string]interface{}{"theme": "dark", "lang": "en"},
	}))
	require.True(t, m.UpdateContext(sess.ID, ContextPatch{
		Preferences: map[string]interface{}{"lang": "fr"},
	}))

	got := m.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, "dark", got.Context.Preferences["theme"], "keys absent from the patch survive")
	assert.Equal(t, "fr", got.Context.Preferences["lang"])
}

func TestCurrentProject(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	_, ok := m.CurrentProject(sess.ID)
	assert.False(t, ok)

	require.True(t, m.SetCurrentProject(sess.ID, "proj-1"))
	id, ok := m.CurrentProject(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "proj-1", id)

	assert.False(t, m.SetCurrentProject("missing", "proj-1"))
}

func TestPersistRestore_Roundtrip(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})
	require.True(t, m.SetCurrentProject(sess.ID, "proj-1"))

	ok, err := m.Persist(context.Background(), sess.ID, map[string]interface{}{"phase": "init"})
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := m.Restore(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, sess.ID, snap.SessionID)
	assert.Equal(t, "init", snap.ProjectState["phase"])
	assert.Equal(t, "proj-1", snap.Context.CurrentProject)
}

func TestPersist_UnknownSession(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())

	ok, err := m.Persist(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_StaleSnapshotEvicted(t *testing.T) {
	m, clock := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	ok, err := m.Persist(context.Background(), sess.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(24 * time.Hour)

	snap, err := m.Restore(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Eviction is permanent: the snapshot is gone from the store.
	raw, err := m.store.Load(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestRestore_NoSnapshot(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())

	snap, err := m.Restore(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDeactivate(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	assert.True(t, m.Deactivate(sess.ID))
	assert.False(t, m.Deactivate(sess.ID), "already inactive")
	assert.Nil(t, m.Get(sess.ID), "inactive sessions are excluded from lookups")
}

func TestRemove_DeletesSnapshot(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	sess := m.Create(ClientInfo{})

	ok, err := m.Persist(context.Background(), sess.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, m.Remove(context.Background(), sess.ID))
	assert.False(t, m.Remove(context.Background(), sess.ID))

	snap, err := m.store.Load(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestActiveSessions_ExcludesExpired(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 30 * time.Minute})

	old := m.Create(ClientInfo{Name: "old"})
	clock.Advance(20 * time.Minute)
	fresh := m.Create(ClientInfo{Name: "fresh"})
	clock.Advance(15 * time.Minute)

	// old has been idle 35m, fresh 15m.
	active := m.ActiveSessions()
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
	_ = old
}

func TestStats(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 30 * time.Minute})

	m.Create(ClientInfo{Name: "cli"})
	m.Create(ClientInfo{Name: "cli"})
	m.Create(ClientInfo{})
	clock.Advance(31 * time.Minute)
	m.Create(ClientInfo{Name: "web"})

	stats := m.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 3, stats.Expired)
	assert.Equal(t, 2, stats.ByClient["cli"])
	assert.Equal(t, 1, stats.ByClient["web"])
	assert.Equal(t, 1, stats.ByClient["unknown"])

	// Computed on demand without mutation: repeated calls agree.
	assert.Equal(t, stats, m.Stats())
}

func TestSweep_ReapsIdleSessions(t *testing.T) {
	m, clock := newTestManager(Config{IdleTimeout: 30 * time.Minute})

	a := m.Create(ClientInfo{})
	b := m.Create(ClientInfo{})
	clock.Advance(20 * time.Minute)
	c := m.Create(ClientInfo{})
	clock.Advance(10 * time.Minute)

	// a and b have been idle exactly 30m, c only 10m.
	assert.Equal(t, 2, m.Sweep())
	assert.Equal(t, 0, m.Sweep(), "a second sweep finds nothing new")

	assert.Nil(t, m.Get(a.ID))
	assert.Nil(t, m.Get(b.ID))
	assert.NotNil(t, m.Get(c.ID))
}

func TestStartShutdown(t *testing.T) {
	m, _ := newTestManager(Config{IdleTimeout: time.Minute, SweepInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	m.Start(ctx) // idempotent

	require.NoError(t, m.Shutdown())
	require.NotPanics(t, func() {
		require.NoError(t, m.Shutdown())
	})
}
