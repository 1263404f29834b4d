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

package transport

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	// ErrAuthenticationFailed is returned when token validation fails.
	ErrAuthenticationFailed = errors.New("transport: authentication failed")

	// ErrTooManyAttempts is returned when a client IP has exceeded the
	// failed-attempt allowance.
	ErrTooManyAttempts = errors.New("transport: too many failed attempts")
)

const (
	tokenBytes        = 32
	maxFailedAttempts = 5
	failureWindow     = time.Minute
	lockoutDuration   = time.Minute
)

// GenerateToken generates a cryptographically secure shared token,
// base64url-encoded without padding.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// tokenValidator checks the shared connection token with a constant-time
// compare and locks out client IPs that fail repeatedly.
type tokenValidator struct {
	token string

	mu       sync.Mutex
	failures map[string]*failureRecord
}

type failureRecord struct {
	count       int
	firstFail   time.Time
	lockedUntil time.Time
}

func newTokenValidator(token string) *tokenValidator {
	return &tokenValidator{
		token:    token,
		failures: make(map[string]*failureRecord),
	}
}

// validate checks the presented token. remoteAddr is used only to key the
// failure tracking; the port part is stripped so a reconnecting client
// cannot reset its record.
func (v *tokenValidator) validate(token, remoteAddr string) error {
	ip := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		ip = host
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	rec := v.failures[ip]
	if rec != nil {
		if now.Before(rec.lockedUntil) {
			return ErrTooManyAttempts
		}
		if now.Sub(rec.firstFail) > failureWindow {
			delete(v.failures, ip)
			rec = nil
		}
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) == 1 {
		delete(v.failures, ip)
		return nil
	}

	if rec == nil {
		rec = &failureRecord{firstFail: now}
		v.failures[ip] = rec
	}
	rec.count++
	if rec.count >= maxFailedAttempts {
		rec.lockedUntil = now.Add(lockoutDuration)
	}
	return ErrAuthenticationFailed
}
