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

package spectools

import (
	"context"
	"fmt"

	"github.com/tombee/blueprint/internal/protocol"
	"github.com/tombee/blueprint/internal/workflow"
	"github.com/tombee/blueprint/pkg/errors"
)

// Prompts exposes one review prompt per gated phase artifact. The prompt
// text instructs a reviewer what to check before approving.
type Prompts struct {
	store workflow.Store
}

// NewPrompts creates the built-in prompt provider.
func NewPrompts(store workflow.Store) *Prompts {
	return &Prompts{store: store}
}

// ListPrompts enumerates the available review prompts.
func (p *Prompts) ListPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	prompts := make([]protocol.Prompt, 0, len(workflow.GatedPhases))
	for _, phase := range workflow.GatedPhases {
		prompts = append(prompts, protocol.Prompt{
			Name:        phase.Artifact() + "-review",
			Description: fmt.Sprintf("Review checklist for a project's %s artifact", phase.Artifact()),
			Arguments: []protocol.PromptArgument{
				{Name: "project_id", Description: "Project identifier", Required: true},
			},
		})
	}
	return prompts, nil
}

// GetPrompt renders one review prompt for a project.
func (p *Prompts) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	var phase workflow.Phase
	for _, gated := range workflow.GatedPhases {
		if name == gated.Artifact()+"-review" {
			phase = gated
			break
		}
	}
	if phase == "" {
		return nil, &errors.NotFoundError{Resource: "prompt", ID: name}
	}

	projectID := args["project_id"]
	if projectID == "" {
		return nil, &errors.ValidationError{
			Field:   "project_id",
			Fields:  []string{"project_id"},
			Message: "project_id argument is required",
		}
	}

	project, err := p.store.Load(projectID)
	if err != nil {
		return nil, err
	}

	artifact := phase.Artifact()
	state := project.Approvals.State(phase)
	text := fmt.Sprintf(
		"Review the %s artifact for project %q (phase: %s, generated: %t, approved: %t). "+
			"Check it for completeness and internal consistency, then approve it with the %s tool.",
		artifact, project.Name, project.Phase, state.Generated, state.Approved, ToolApprovePhase)

	return &protocol.GetPromptResult{
		Description: fmt.Sprintf("Review checklist for the %s of %s", artifact, project.Name),
		Messages: []protocol.PromptMessage{
			{Role: "user", Content: protocol.TextContent(text)},
		},
	}, nil
}
