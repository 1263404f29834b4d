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

// Package dispatch routes decoded protocol requests to the session
// manager, tool registry, and resource/prompt providers, and shapes the
// outcomes into protocol-conformant responses.
//
// The dispatcher itself is stateless; the only stateful entities it
// touches are injected at construction so tests can build isolated
// instances.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/blueprint/internal/log"
	"github.com/tombee/blueprint/internal/protocol"
	"github.com/tombee/blueprint/internal/registry"
	"github.com/tombee/blueprint/internal/session"
	"github.com/tombee/blueprint/pkg/errors"
)

// Implementation-defined server error codes, inside the reserved
// -32099..-32000 range.
const (
	codeSessionExpired      = -32000
	codeRateLimited         = -32001
	codeProviderUnavailable = -32002
	codeResourceNotFound    = -32003
)

// ResourceProvider supplies the resource surface. The dispatcher forwards
// its return values unmodified.
type ResourceProvider interface {
	ListResources(ctx context.Context) ([]protocol.Resource, error)
	ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error)
}

// PromptProvider supplies the prompt surface.
type PromptProvider interface {
	ListPrompts(ctx context.Context) ([]protocol.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error)
}

// Options tunes per-call behavior. The zero value disables both the
// per-call deadline and rate limiting.
type Options struct {
	// CallTimeout bounds one tool handler execution. Zero means no
	// deadline; a hanging handler then blocks only its own call.
	CallTimeout time.Duration

	// RateLimit is the sustained per-session request rate. Zero
	// disables limiting.
	RateLimit float64

	// RateBurst is the per-session burst allowance.
	RateBurst int
}

// Dispatcher is the protocol façade.
type Dispatcher struct {
	sessions  *session.Manager
	registry  *registry.Registry
	resources ResourceProvider
	prompts   PromptProvider
	limiters  *sessionLimiters
	opts      Options
	logger    *slog.Logger
}

// New creates a dispatcher over the given collaborators. The resource and
// prompt providers may be nil, in which case their list methods return
// empty results and their read methods report the surface as unavailable.
func New(sessions *session.Manager, reg *registry.Registry, resources ResourceProvider, prompts PromptProvider, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions:  sessions,
		registry:  reg,
		resources: resources,
		prompts:   prompts,
		limiters:  newSessionLimiters(opts.RateLimit, opts.RateBurst),
		opts:      opts,
		logger:    log.WithComponent(logger, "dispatch"),
	}
}

// HandleMessage parses one raw message and dispatches it. Malformed JSON
// yields a parse-error response; a well-formed but invalid envelope yields
// an invalid-request response. The returned response is nil for
// notifications.
func (d *Dispatcher) HandleMessage(ctx context.Context, sessionID string, raw []byte) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return protocol.NewErrorResponse(nil, protocol.CodeParseError, "parse error", err.Error())
	}
	if err := req.Validate(); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidRequest, "invalid request", err.Error())
	}
	return d.Handle(ctx, sessionID, &req)
}

// Handle dispatches one validated request. Notifications (requests without
// an id) are processed but produce no response.
func (d *Dispatcher) Handle(ctx context.Context, sessionID string, req *protocol.Request) *protocol.Response {
	start := time.Now()
	resp := d.dispatch(ctx, sessionID, req)
	elapsed := time.Since(start)

	status := "success"
	if resp != nil && resp.Error != nil {
		status = "error"
	}
	recordRequest(req.Method, status, elapsed.Seconds())

	d.logger.Debug("request handled",
		log.MethodKey, req.Method,
		log.SessionIDKey, sessionID,
		"status", status,
		slog.Int64(log.DurationKey, elapsed.Milliseconds()))

	if req.ID == nil {
		return nil
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, sessionID string, req *protocol.Request) *protocol.Response {
	sess := d.sessions.Get(sessionID)
	if sess == nil {
		return protocol.NewErrorResponse(req.ID, codeSessionExpired, "session expired or unknown", nil)
	}

	if !d.limiters.allow(sess.ID) {
		return protocol.NewErrorResponse(req.ID, codeRateLimited, "rate limit exceeded", nil)
	}

	switch req.Method {
	case protocol.MethodListTools:
		return d.listTools(req)
	case protocol.MethodCallTool:
		return d.callTool(ctx, sess, req)
	case protocol.MethodListResources:
		return d.listResources(ctx, req)
	case protocol.MethodReadResource:
		return d.readResource(ctx, req)
	case protocol.MethodListPrompts:
		return d.listPrompts(ctx, req)
	case protocol.MethodGetPrompt:
		return d.getPrompt(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.CodeMethodNotFound, "method not found", req.Method)
	}
}

func (d *Dispatcher) listTools(req *protocol.Request) *protocol.Response {
	infos := d.registry.List()
	tools := make([]protocol.ToolInfo, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, protocol.ToolInfo{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
		})
	}
	return d.success(req, protocol.ListToolsResult{Tools: tools})
}

// callTool stamps a fresh correlation id, delegates to the registry, and
// translates the envelope. Business-logic failures become content with
// isError set; they never become transport-level errors.
func (d *Dispatcher) callTool(ctx context.Context, sess *session.Session, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if err := req.UnmarshalParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", err.Error())
	}
	if params.Name == "" {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", "tool name is required")
	}

	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	result := d.registry.Execute(ctx, registry.ExecutionContext{
		SessionID:     sess.ID,
		Tool:          params.Name,
		Arguments:     params.Arguments,
		CorrelationID: uuid.NewString(),
	})

	if !result.Success {
		return d.success(req, protocol.CallToolResult{
			Content: []protocol.Content{protocol.TextContent(result.Error)},
			IsError: true,
		})
	}

	text, err := renderData(result.Data)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, "internal error", err.Error())
	}
	return d.success(req, protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent(text)},
	})
}

func (d *Dispatcher) listResources(ctx context.Context, req *protocol.Request) *protocol.Response {
	if d.resources == nil {
		return d.success(req, protocol.ListResourcesResult{Resources: []protocol.Resource{}})
	}
	resources, err := d.resources.ListResources(ctx)
	if err != nil {
		return d.providerError(req, err)
	}
	if resources == nil {
		resources = []protocol.Resource{}
	}
	return d.success(req, protocol.ListResourcesResult{Resources: resources})
}

func (d *Dispatcher) readResource(ctx context.Context, req *protocol.Request) *protocol.Response {
	if d.resources == nil {
		return protocol.NewErrorResponse(req.ID, codeProviderUnavailable, "no resource provider configured", nil)
	}
	var params protocol.ReadResourceParams
	if err := req.UnmarshalParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", err.Error())
	}
	if params.URI == "" {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", "resource uri is required")
	}

	contents, err := d.resources.ReadResource(ctx, params.URI)
	if err != nil {
		return d.providerError(req, err)
	}
	return d.success(req, protocol.ReadResourceResult{Contents: contents})
}

func (d *Dispatcher) listPrompts(ctx context.Context, req *protocol.Request) *protocol.Response {
	if d.prompts == nil {
		return d.success(req, protocol.ListPromptsResult{Prompts: []protocol.Prompt{}})
	}
	prompts, err := d.prompts.ListPrompts(ctx)
	if err != nil {
		return d.providerError(req, err)
	}
	if prompts == nil {
		prompts = []protocol.Prompt{}
	}
	return d.success(req, protocol.ListPromptsResult{Prompts: prompts})
}

func (d *Dispatcher) getPrompt(ctx context.Context, req *protocol.Request) *protocol.Response {
	if d.prompts == nil {
		return protocol.NewErrorResponse(req.ID, codeProviderUnavailable, "no prompt provider configured", nil)
	}
	var params protocol.GetPromptParams
	if err := req.UnmarshalParams(&params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", err.Error())
	}
	if params.Name == "" {
		return protocol.NewErrorResponse(req.ID, protocol.CodeInvalidParams, "invalid params", "prompt name is required")
	}

	result, err := d.prompts.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return d.providerError(req, err)
	}
	return d.success(req, result)
}

// ReleaseSession drops per-session dispatcher state. Transports call this
// when a client disconnects so limiter entries do not accumulate.
func (d *Dispatcher) ReleaseSession(sessionID string) {
	d.limiters.forget(sessionID)
}

func (d *Dispatcher) success(req *protocol.Request, result interface{}) *protocol.Response {
	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		d.logger.Error("failed to marshal response", log.MethodKey, req.Method, log.Error(err))
		return protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, "internal error", nil)
	}
	return resp
}

func (d *Dispatcher) providerError(req *protocol.Request, err error) *protocol.Response {
	if errors.IsNotFound(err) {
		return protocol.NewErrorResponse(req.ID, codeResourceNotFound, err.Error(), nil)
	}
	d.logger.Error("provider failure", log.MethodKey, req.Method, log.Error(err))
	return protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, "internal error", err.Error())
}

// renderData serializes a tool result payload into text content. Strings
// pass through untouched; everything else is rendered as JSON.
func renderData(data interface{}) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}
