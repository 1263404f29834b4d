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

// Package session manages client sessions: creation, capability flags,
// per-session context, idle expiry, and persisted recovery snapshots.
//
// A Session is the state of one logical client connection, independent of
// any specific transport connection. Sessions age out via an idle timeout
// swept by a background reaper owned by the Manager.
package session

import "time"

// ClientInfo identifies the connecting client. Both fields are optional.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Capabilities is the per-session protocol feature flag set.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// CapabilityPatch is a partial capability update. Nil fields are left
// unchanged.
type CapabilityPatch struct {
	Tools     *bool `json:"tools,omitempty"`
	Resources *bool `json:"resources,omitempty"`
	Prompts   *bool `json:"prompts,omitempty"`
	Logging   *bool `json:"logging,omitempty"`
}

// Context is the mutable per-session context block.
type Context struct {
	// CurrentProject is the project the session is working on, if any
	CurrentProject string `json:"current_project,omitempty"`

	// WorkingDirectory is the client-reported working directory
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Preferences is an open-ended preference mapping
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// ContextPatch is a partial context update. Nil fields are left unchanged;
// Preferences entries are merged key-by-key into the existing mapping,
// never replacing it wholesale.
type ContextPatch struct {
	CurrentProject   *string                `json:"current_project,omitempty"`
	WorkingDirectory *string                `json:"working_directory,omitempty"`
	Preferences      map[string]interface{} `json:"preferences,omitempty"`
}

// Session is one client session. The ID is generated at creation and never
// changes. All fields are owned by the Manager; callers receive copies.
type Session struct {
	ID           string       `json:"id"`
	Client       ClientInfo   `json:"client"`
	Capabilities Capabilities `json:"capabilities"`
	Context      Context      `json:"context"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	Active       bool         `json:"active"`
}

// IdleFor returns how long the session has been idle as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Expired reports whether the session's idle time has reached the timeout.
// Exactly at the timeout counts as expired.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return s.IdleFor(now) >= timeout
}

// clone returns a deep copy so callers cannot mutate Manager-owned state.
func (s *Session) clone() *Session {
	out := *s
	if s.Context.Preferences != nil {
		prefs := make(map[string]interface{}, len(s.Context.Preferences))
		for k, v := range s.Context.Preferences {
			prefs[k] = v
		}
		out.Context.Preferences = prefs
	}
	return &out
}

// Snapshot is a persisted session state written on demand for durability
// across reconnects. Snapshots are readable only while younger than the
// recovery window; stale snapshots are evicted on the next read attempt.
type Snapshot struct {
	SessionID    string                 `json:"session_id"`
	ProjectState map[string]interface{} `json:"project_state,omitempty"`
	Context      Context                `json:"context"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Stats is an aggregate view over the session table, computed on demand.
type Stats struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Expired  int            `json:"expired"`
	ByClient map[string]int `json:"by_client"`
}
