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

package workflow

import (
	"fmt"
	"time"
)

// Project is a workflow project: its current phase and approval record.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Phase       Phase     `json:"phase"`
	Approvals   Approvals `json:"approvals"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProject creates a project at the init phase with an empty approval
// record.
func NewProject(id, name, description string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:          id,
		Name:        name,
		Description: description,
		Phase:       PhaseInit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Advance moves the project to target after consulting the gate. The gate's
// refusal reason is returned verbatim so callers can surface it unchanged.
// On success the target phase's artifact is marked generated.
func (p *Project) Advance(target Phase) error {
	decision := CanTransition(p.Phase, target, p.Approvals)
	if !decision.Allowed {
		return fmt.Errorf("%s", decision.Reason)
	}

	p.Phase = target
	p.markGenerated(target)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Approve records human approval for a gated phase's artifact. The artifact
// must have been generated first.
func (p *Project) Approve(phase Phase) error {
	state := p.Approvals.State(phase)
	if phase.Artifact() == "" {
		return fmt.Errorf("phase %s has no approvable artifact", phase)
	}
	if !state.Generated {
		return fmt.Errorf("%s must be generated before it can be approved", phase.Artifact())
	}

	switch phase {
	case PhaseRequirements:
		p.Approvals.Requirements.Approved = true
	case PhaseDesign:
		p.Approvals.Design.Approved = true
	case PhaseTasks:
		p.Approvals.Tasks.Approved = true
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *Project) markGenerated(phase Phase) {
	switch phase {
	case PhaseRequirements:
		p.Approvals.Requirements.Generated = true
	case PhaseDesign:
		p.Approvals.Design.Generated = true
	case PhaseTasks:
		p.Approvals.Tasks.Generated = true
	}
}
