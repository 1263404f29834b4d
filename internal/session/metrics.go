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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blueprint_sessions_created_total",
		Help: "Total sessions created",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blueprint_sessions_active",
		Help: "Number of currently active sessions",
	})

	sessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blueprint_sessions_reaped_total",
		Help: "Total sessions deactivated by the idle sweep",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blueprint_session_duration_seconds",
		Help:    "Lifetime of sessions from creation to deactivation",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)
