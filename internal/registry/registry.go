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

// Package registry provides the tool registry: registration, argument
// validation, dispatch, and uniform result envelopes.
//
// This is the single choke point where argument validation, phase gating
// (performed inside handlers), and error shaping are unified. A handler
// failure never propagates as an uncaught error to the caller; every
// outcome is an ExecutionResult.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/blueprint/internal/log"
	"github.com/tombee/blueprint/pkg/errors"
)

// Handler executes a tool call. Implementations may block on external work;
// the context carries cancellation when the dispatcher applies a deadline.
type Handler interface {
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f(ctx, args)
}

// Descriptor binds a tool name to its schema and handler.
type Descriptor struct {
	// Name is the unique tool identifier
	Name string

	// Description is the human-readable summary shown to clients
	Description string

	// InputSchema is the structural contract for the argument map
	InputSchema *Schema

	// Handler is the bound implementation
	Handler Handler
}

// Info is the public-facing subset of a descriptor. Handlers are never
// exposed outward.
type Info struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	InputSchema *Schema `json:"inputSchema,omitempty"`
}

// ToolStats tracks per-tool execution counts for diagnostics.
type ToolStats struct {
	Calls         int64         `json:"calls"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Registry maintains the table of registered tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Descriptor
	stats  map[string]*ToolStats
	logger *slog.Logger
}

// New creates an empty tool registry. A nil logger falls back to
// slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Descriptor),
		stats:  make(map[string]*ToolStats),
		logger: log.WithComponent(logger, "registry"),
	}
}

// Register adds a tool to the registry. A missing name, schema, or handler
// is a registration-time failure, never deferred to call time. Registering
// over an existing name overwrites the previous binding and logs a warning;
// this is intentional to support hot-reloading of tool sets.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return &errors.RegistrationError{Reason: "name is empty"}
	}
	if desc.InputSchema == nil {
		return &errors.RegistrationError{Tool: desc.Name, Reason: "input schema is missing"}
	}
	if desc.Handler == nil {
		return &errors.RegistrationError{Tool: desc.Name, Reason: "handler is nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		r.logger.Warn("overwriting existing tool registration", log.ToolKey, desc.Name)
	}

	r.tools[desc.Name] = desc
	registeredTools.Set(float64(len(r.tools)))
	return nil
}

// Unregister removes a tool. Returns false if the name was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	registeredTools.Set(float64(len(r.tools)))
	return true
}

// List returns the public descriptors of all registered tools, sorted by
// name for stable output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, desc := range r.tools {
		infos = append(infos, Info{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Execute resolves and runs a tool call, wrapping the outcome into a
// uniform envelope. It never returns an error and never panics: unknown
// tools, invalid arguments, handler failures, and handler panics all become
// failure envelopes. Every invocation is logged with its correlation id.
func (r *Registry) Execute(ctx context.Context, call ExecutionContext) ExecutionResult {
	logger := log.WithCorrelationID(r.logger, call.CorrelationID).With(
		log.ToolKey, call.Tool,
		log.SessionIDKey, call.SessionID)

	r.mu.RLock()
	desc, exists := r.tools[call.Tool]
	r.mu.RUnlock()

	start := time.Now()

	if !exists {
		result := r.failure(call, start, &errors.NotFoundError{Resource: "tool", ID: call.Tool})
		logger.Warn("tool not found")
		return result
	}

	if err := desc.InputSchema.Validate(call.Arguments); err != nil {
		result := r.failure(call, start, err)
		logger.Warn("tool arguments rejected", log.Error(err))
		return result
	}

	data, err := r.invoke(ctx, desc, call.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		result := r.failure(call, start, err)
		logger.Error("tool execution failed",
			log.Error(err),
			slog.Int64(log.DurationKey, elapsed.Milliseconds()))
		return result
	}

	r.record(call.Tool, elapsed, false)
	recordExecution(call.Tool, elapsed.Seconds(), "success", "")
	logger.Info("tool executed",
		slog.Int64(log.DurationKey, elapsed.Milliseconds()))

	return ExecutionResult{
		Success: true,
		Data:    data,
		Metadata: ExecutionMetadata{
			ExecutionTime: elapsed,
			SessionID:     call.SessionID,
			CorrelationID: call.CorrelationID,
		},
	}
}

// invoke runs the handler, converting panics into errors so a defective
// handler cannot crash the dispatcher.
func (r *Registry) invoke(ctx context.Context, desc Descriptor, args map[string]interface{}) (data interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", desc.Name, rec)
		}
	}()
	return desc.Handler.Execute(ctx, args)
}

// failure builds a failure envelope and records stats/metrics for it.
func (r *Registry) failure(call ExecutionContext, start time.Time, err error) ExecutionResult {
	elapsed := time.Since(start)
	errType := errors.TypeOf(err)

	r.record(call.Tool, elapsed, true)
	recordExecution(call.Tool, elapsed.Seconds(), "error", errType)

	return ExecutionResult{
		Success:         false,
		Error:           err.Error(),
		ErrorType:       errType,
		ViolatingFields: errors.ViolatingFields(err),
		Metadata: ExecutionMetadata{
			ExecutionTime: elapsed,
			SessionID:     call.SessionID,
			CorrelationID: call.CorrelationID,
		},
	}
}

func (r *Registry) record(tool string, elapsed time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.stats[tool]
	if !ok {
		stats = &ToolStats{}
		r.stats[tool] = stats
	}
	stats.Calls++
	stats.TotalDuration += elapsed
	if failed {
		stats.Failures++
	}
}

// Documentation returns a tool's description and schema for diagnostics.
// Not part of the execution path.
func (r *Registry) Documentation(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.tools[name]
	if !exists {
		return Info{}, &errors.NotFoundError{Resource: "tool", ID: name}
	}
	return Info{Name: desc.Name, Description: desc.Description, InputSchema: desc.InputSchema}, nil
}

// Stats returns a copy of the per-tool execution counters. Computed on
// demand, never cached.
func (r *Registry) Stats() map[string]ToolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ToolStats, len(r.stats))
	for name, stats := range r.stats {
		out[name] = *stats
	}
	return out
}
