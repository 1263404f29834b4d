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

package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blueprint_tool_execution_duration_seconds",
			Help:    "Duration of tool executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool", "status"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_tool_executions_total",
			Help: "Total tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	failuresByType = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blueprint_tool_failures_total",
			Help: "Total tool execution failures by error type",
		},
		[]string{"error_type"},
	)

	registeredTools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blueprint_tools_registered",
		Help: "Number of currently registered tools",
	})
)

// recordExecution records metrics for one tool execution.
func recordExecution(tool string, seconds float64, status, errorType string) {
	executionDuration.WithLabelValues(tool, status).Observe(seconds)
	executionsTotal.WithLabelValues(tool, status).Inc()

	if status == "error" && errorType != "" {
		failuresByType.WithLabelValues(errorType).Inc()
	}
}
