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
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/blueprint/internal/log"
)

// Config controls session lifecycle timing.
//
// IdleTimeout is used exactly as given: zero means sessions expire
// immediately, which is useful in tests. SweepInterval and RecoveryWindow
// fall back to defaults when zero.
type Config struct {
	// IdleTimeout is how long a session may be idle before it expires
	IdleTimeout time.Duration

	// SweepInterval is how often the background reaper scans for idle sessions
	SweepInterval time.Duration

	// RecoveryWindow is how long persisted snapshots remain restorable
	RecoveryWindow time.Duration
}

// DefaultConfig returns the production lifecycle timings.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:    30 * time.Minute,
		SweepInterval:  5 * time.Minute,
		RecoveryWindow: 24 * time.Hour,
	}
}

// Manager owns the table of live sessions and the snapshot store. All
// mutation goes through its methods; callers only ever see copies.
//
// Absence is non-exceptional here: operations on an unknown session id
// return false or nil, never an error.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg    Config
	store  SnapshotStore
	logger *slog.Logger

	// now is swappable for expiry tests
	now func() time.Time

	sweepOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a session manager. A nil store falls back to an
// in-memory snapshot store; a nil logger falls back to slog.Default.
func NewManager(cfg Config, store SnapshotStore, logger *slog.Logger) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		store:    store,
		logger:   log.WithComponent(logger, "session"),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Create allocates a new session. It always succeeds. The default
// capability set enables tools only; the rest are opted into during
// capability negotiation.
func (m *Manager) Create(client ClientInfo) *Session {
	now := m.now()
	sess := &Session{
		ID:           uuid.NewString(),
		Client:       client,
		Capabilities: Capabilities{Tools: true},
		Context:      Context{Preferences: make(map[string]interface{})},
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	sessionsCreated.Inc()
	sessionsActive.Inc()

	m.logger.Info("session created",
		log.SessionIDKey, sess.ID,
		"client", client.Name,
		"client_version", client.Version)

	return sess.clone()
}

// Get returns the session, refreshing its activity timestamp, or nil if
// the id is unknown, the session is inactive, or it has exceeded the idle
// timeout. An expired session is marked inactive as a side effect.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || !sess.Active {
		return nil
	}

	now := m.now()
	if sess.Expired(now, m.cfg.IdleTimeout) {
		m.deactivateLocked(sess, "idle timeout")
		return nil
	}

	sess.LastActivity = now
	return sess.clone()
}

// UpdateCapabilities applies a partial capability update. Returns false if
// the session is unknown or inactive.
func (m *Manager) UpdateCapabilities(id string, patch CapabilityPatch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || !sess.Active {
		return false
	}

	if patch.Tools != nil {
		sess.Capabilities.Tools = *patch.Tools
	}
	if patch.Resources != nil {
		sess.Capabilities.Resources = *patch.Resources
	}
	if patch.Prompts != nil {
		sess.Capabilities.Prompts = *patch.Prompts
	}
	if patch.Logging != nil {
		sess.Capabilities.Logging = *patch.Logging
	}
	return true
}

// UpdateContext applies a partial context update. Preference entries are
// merged into the existing mapping key-by-key; existing keys absent from
// the patch survive. Returns false if the session is unknown or inactive.
func (m *Manager) UpdateContext(id string, patch ContextPatch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || !sess.Active {
		return false
	}

	if patch.CurrentProject != nil {
		sess.Context.CurrentProject = *patch.CurrentProject
	}
	if patch.WorkingDirectory != nil {
		sess.Context.WorkingDirectory = *patch.WorkingDirectory
	}
	if len(patch.Preferences) > 0 {
		if sess.Context.Preferences == nil {
			sess.Context.Preferences = make(map[string]interface{}, len(patch.Preferences))
		}
		for k, v := range patch.Preferences {
			sess.Context.Preferences[k] = v
		}
	}
	return true
}

// SetCurrentProject records the project the session is working on.
func (m *Manager) SetCurrentProject(id, projectID string) bool {
	return m.UpdateContext(id, ContextPatch{CurrentProject: &projectID})
}

// CurrentProject returns the session's current project id, if any.
func (m *Manager) CurrentProject(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok || !sess.Active || sess.Context.CurrentProject == "" {
		return "", false
	}
	return sess.Context.CurrentProject, true
}

// Persist writes a recovery snapshot of the session, pairing the caller's
// project-state blob with the session's current context. Returns false if
// the session is unknown or inactive.
func (m *Manager) Persist(ctx context.Context, id string, projectState map[string]interface{}) (bool, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	live := ok && sess.Active
	var snap Snapshot
	if live {
		snap = Snapshot{
			SessionID:    id,
			ProjectState: projectState,
			Context:      sess.clone().Context,
			Timestamp:    m.now(),
		}
	}
	m.mu.RUnlock()

	if !live {
		return false, nil
	}

	if err := m.store.Save(ctx, snap); err != nil {
		return false, err
	}
	m.logger.Debug("session persisted", log.SessionIDKey, id)
	return true, nil
}

// Restore reads back a persisted snapshot. Snapshots older than the
// recovery window are treated as expired: they are evicted and nil is
// returned.
func (m *Manager) Restore(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	if m.now().Sub(snap.Timestamp) >= m.cfg.RecoveryWindow {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, err
		}
		m.logger.Info("stale session snapshot evicted", log.SessionIDKey, id)
		return nil, nil
	}
	return snap, nil
}

// Deactivate flips the session inactive and logs its lifetime. Returns
// false if the session is unknown or already inactive.
func (m *Manager) Deactivate(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || !sess.Active {
		return false
	}
	m.deactivateLocked(sess, "explicit")
	return true
}

// deactivateLocked flips the active flag. Caller holds m.mu.
func (m *Manager) deactivateLocked(sess *Session, cause string) {
	sess.Active = false
	lifetime := m.now().Sub(sess.CreatedAt)

	sessionsActive.Dec()
	sessionDuration.Observe(lifetime.Seconds())

	m.logger.Info("session deactivated",
		log.SessionIDKey, sess.ID,
		"cause", cause,
		log.Duration(log.DurationKey, lifetime.Milliseconds()))
}

// Remove deletes the session and any persisted snapshot. Returns false if
// the session was unknown.
func (m *Manager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		if sess.Active {
			m.deactivateLocked(sess, "removed")
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn("failed to delete session snapshot", log.SessionIDKey, id, log.Error(err))
	}
	return true
}

// ActiveSessions returns copies of all live, unexpired sessions, sorted by
// creation time.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.Active && !sess.Expired(now, m.cfg.IdleTimeout) {
			out = append(out, sess.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats computes an aggregate view over the session table. Computed on
// demand, never cached.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	stats := Stats{ByClient: make(map[string]int)}
	for _, sess := range m.sessions {
		stats.Total++
		if sess.Active && !sess.Expired(now, m.cfg.IdleTimeout) {
			stats.Active++
		} else {
			stats.Expired++
		}

		client := sess.Client.Name
		if client == "" {
			client = "unknown"
		}
		stats.ByClient[client]++
	}
	return stats
}

// Start launches the background idle-session sweep. The sweep stops when
// ctx is cancelled or Shutdown is called. Start is idempotent.
func (m *Manager) Start(ctx context.Context) {
	m.sweepOnce.Do(func() {
		m.wg.Add(1)
		go m.sweepLoop(ctx)
	})
}

// Shutdown stops the background sweep and closes the snapshot store.
// Safe to call more than once.
func (m *Manager) Shutdown() error {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return m.store.Close()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Sweep deactivates every active session whose idle time has reached the
// timeout and emits one aggregate log line. Returns the number reaped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	reaped := 0
	for _, sess := range m.sessions {
		if sess.Active && sess.Expired(now, m.cfg.IdleTimeout) {
			m.deactivateLocked(sess, "idle timeout")
			reaped++
		}
	}

	if reaped > 0 {
		sessionsReaped.Add(float64(reaped))
		m.logger.Info("idle sessions reaped", "count", reaped)
	}
	return reaped
}
