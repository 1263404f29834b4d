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

package dispatch

import (
	"sync"

	"golang.org/x/time/rate"
)

// sessionLimiters holds one token bucket per session. Entries are removed
// via forget when the owning session goes away.
type sessionLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newSessionLimiters builds the limiter table. A non-positive limit
// disables limiting entirely.
func newSessionLimiters(limit float64, burst int) *sessionLimiters {
	if burst < 1 {
		burst = 1
	}
	return &sessionLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
}

func (l *sessionLimiters) allow(sessionID string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[sessionID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *sessionLimiters) forget(sessionID string) {
	l.mu.Lock()
	delete(l.limiters, sessionID)
	l.mu.Unlock()
}
