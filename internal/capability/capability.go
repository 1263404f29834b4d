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

// Package capability implements protocol feature negotiation at connection
// time. Negotiation is a pure function of the client declaration plus a fixed
// server capability constant; it never fails and holds no state.
package capability

import "log/slog"

// ClientCapabilities is the client's declared capability set. Any subset of
// the fields may be absent; presence of a capability object, not its content,
// is what matters.
type ClientCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Logging   *struct{}            `json:"logging,omitempty"`
	Roots     *RootsCapability     `json:"roots,omitempty"`
}

// ToolsCapability declares tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability declares resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability declares prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// RootsCapability declares filesystem-root support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities is the server's fixed capability declaration.
type ServerCapabilities struct {
	Tools     ToolsCapability     `json:"tools"`
	Resources ResourcesCapability `json:"resources"`
	Prompts   PromptsCapability   `json:"prompts"`
	Logging   struct{}            `json:"logging"`
}

// Features is the derived per-session feature flag set.
type Features struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// Negotiated is the outcome of capability negotiation.
type Negotiated struct {
	Server   ServerCapabilities `json:"server"`
	Features Features           `json:"features"`
}

// Server returns the fixed server capability declaration: tools, resources,
// and prompts with list-change notifications, resource subscription, and
// logging.
func Server() ServerCapabilities {
	return ServerCapabilities{
		Tools:     ToolsCapability{ListChanged: true},
		Resources: ResourcesCapability{Subscribe: true, ListChanged: true},
		Prompts:   PromptsCapability{ListChanged: true},
	}
}

// Negotiator computes the feature intersection for new connections.
type Negotiator struct {
	logger *slog.Logger
}

// NewNegotiator creates a capability negotiator. A nil logger falls back to
// slog.Default.
func NewNegotiator(logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{logger: logger}
}

// Negotiate derives the session feature set from the client declaration.
// Tool support is the server's core contract, so Features.Tools is true
// regardless of what the client declared; every other flag is true iff the
// client declared the corresponding capability object. The client declaration
// may be nil. Negotiate always succeeds.
func (n *Negotiator) Negotiate(client *ClientCapabilities) Negotiated {
	result := Negotiated{
		Server:   Server(),
		Features: Features{Tools: true},
	}

	if client != nil {
		result.Features.Resources = client.Resources != nil
		result.Features.Prompts = client.Prompts != nil
		result.Features.Logging = client.Logging != nil
	}

	n.logger.Info("capabilities negotiated",
		"tools", result.Features.Tools,
		"resources", result.Features.Resources,
		"prompts", result.Features.Prompts,
		"logging", result.Features.Logging)

	return result
}
