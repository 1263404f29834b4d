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

import "time"

// ExecutionContext is the per-call value object handed to Execute.
// Never persisted.
type ExecutionContext struct {
	// SessionID identifies the calling session
	SessionID string `json:"session_id"`

	// Tool is the name of the tool to invoke
	Tool string `json:"tool"`

	// Arguments is the raw decoded argument map
	Arguments map[string]interface{} `json:"arguments,omitempty"`

	// CorrelationID associates this call with its logged execution trace
	CorrelationID string `json:"correlation_id"`
}

// ExecutionMetadata carries timing and identity metadata for one call.
type ExecutionMetadata struct {
	// ExecutionTime is the wall-clock handler duration
	ExecutionTime time.Duration `json:"execution_time"`

	// SessionID echoes the calling session
	SessionID string `json:"session_id"`

	// CorrelationID echoes the per-call identifier
	CorrelationID string `json:"correlation_id"`
}

// ExecutionResult is the uniform result envelope. Callers never need to
// distinguish "tool threw" from "tool returned an error" from "tool does not
// exist" except by inspecting Success and Error.
type ExecutionResult struct {
	// Success is true when the handler completed without failure
	Success bool `json:"success"`

	// Data is the handler's result value (success only)
	Data interface{} `json:"data,omitempty"`

	// Error is the failure message (failure only)
	Error string `json:"error,omitempty"`

	// ErrorType classifies the failure for diagnostics and metrics
	ErrorType string `json:"error_type,omitempty"`

	// ViolatingFields lists the offending arguments on validation failures
	ViolatingFields []string `json:"violating_fields,omitempty"`

	// Metadata carries timing and identity for every call, success or not
	Metadata ExecutionMetadata `json:"metadata"`
}
