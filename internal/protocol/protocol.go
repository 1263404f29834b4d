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

// Package protocol defines the JSON-RPC 2.0 request/response envelope the
// dispatcher consumes. The core is transport-agnostic: it operates on
// already-deserialized Request values and produces Response values; how the
// bytes move is the transport's concern.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC version string required on every request.
const Version = "2.0"

// Reserved JSON-RPC 2.0 error codes. These must match exactly for
// client interoperability.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeServerErrorMin and CodeServerErrorMax bound the
	// implementation-defined server error range.
	CodeServerErrorMin = -32099
	CodeServerErrorMax = -32000
)

// Supported request methods.
const (
	MethodListTools     = "list-tools"
	MethodCallTool      = "call-tool"
	MethodListResources = "list-resources"
	MethodReadResource  = "read-resource"
	MethodListPrompts   = "list-prompts"
	MethodGetPrompt     = "get-prompt"
)

var (
	// ErrInvalidRequest is returned when a request envelope is malformed.
	ErrInvalidRequest = errors.New("protocol: invalid request")

	// ErrUnknownVersion is returned when the jsonrpc field is not "2.0".
	ErrUnknownVersion = errors.New("protocol: unknown jsonrpc version")

	// ErrMissingMethod is returned when a request carries no method.
	ErrMissingMethod = errors.New("protocol: missing method")
)

// Request is a decoded JSON-RPC request.
type Request struct {
	// JSONRPC must be "2.0"
	JSONRPC string `json:"jsonrpc"`

	// ID correlates the request with its response. A null ID marks a
	// notification; the dispatcher answers those with no response.
	ID json.RawMessage `json:"id,omitempty"`

	// Method is the operation to invoke
	Method string `json:"method"`

	// Params carries method parameters, left raw until the handler
	// knows the expected shape
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so ErrorObject can travel as an error.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Validate checks that the request envelope is well-formed.
// Malformed envelopes are rejected before reaching any component.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("%w: %q", ErrUnknownVersion, r.JSONRPC)
	}
	if r.Method == "" {
		return ErrMissingMethod
	}
	return nil
}

// UnmarshalParams unmarshals the params field into the given value.
func (r *Request) UnmarshalParams(v interface{}) error {
	if r.Params == nil {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// ParseRequest parses and validates a raw JSON request.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// NewResponse creates a success response for the given request ID.
func NewResponse(id json.RawMessage, result interface{}) (*Response, error) {
	var resultJSON json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = data
	}

	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response with a reserved protocol code.
func NewErrorResponse(id json.RawMessage, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// Marshal encodes the response to JSON.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
