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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blueprint_request_duration_seconds",
			Help:    "Duration of dispatched protocol requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_requests_total",
			Help: "Total dispatched protocol requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func recordRequest(method, status string, seconds float64) {
	requestDuration.WithLabelValues(method).Observe(seconds)
	requestsTotal.WithLabelValues(method, status).Inc()
}
