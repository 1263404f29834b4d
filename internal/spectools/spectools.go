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

// Package spectools provides the built-in workflow tools: project
// creation and listing, phase-advancing document generation, approval,
// and status. Each phase-advancing tool consults the workflow gate before
// doing any work, so a disallowed transition surfaces the gate's reason
// and changes nothing.
package spectools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tombee/blueprint/internal/log"
	"github.com/tombee/blueprint/internal/registry"
	"github.com/tombee/blueprint/internal/workflow"
)

// Tool names registered by this package.
const (
	ToolProjectCreate      = "project-create"
	ToolProjectList        = "project-list"
	ToolCreateRequirements = "workflow-create-requirements"
	ToolCreateDesign       = "workflow-create-design"
	ToolCreateTasks        = "workflow-create-tasks"
	ToolApprovePhase       = "workflow-approve-phase"
	ToolStatus             = "workflow-status"
)

// Service wires the workflow store and renderer into tool handlers.
type Service struct {
	store    workflow.Store
	renderer Renderer
	logger   *slog.Logger
}

// NewService creates the workflow tool service. A nil renderer falls back
// to the markdown skeleton renderer.
func NewService(store workflow.Store, renderer Renderer, logger *slog.Logger) *Service {
	if renderer == nil {
		renderer = MarkdownRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		renderer: renderer,
		logger:   log.WithComponent(logger, "spectools"),
	}
}

// RegisterAll registers every workflow tool on the registry.
func (s *Service) RegisterAll(reg *registry.Registry) error {
	descriptors := []registry.Descriptor{
		{
			Name:        ToolProjectCreate,
			Description: "Create a new workflow project at the init phase",
			InputSchema: registry.ObjectSchema(map[string]*registry.Property{
				"name":        {Type: "string", Description: "Project name"},
				"description": {Type: "string", Description: "Short project description"},
			}, "name"),
			Handler: registry.HandlerFunc(s.projectCreate),
		},
		{
			Name:        ToolProjectList,
			Description: "List all workflow projects with their current phase",
			InputSchema: registry.ObjectSchema(nil),
			Handler:     registry.HandlerFunc(s.projectList),
		},
		{
			Name:        ToolCreateRequirements,
			Description: "Generate the requirements document and advance the project",
			InputSchema: phaseToolSchema(),
			Handler:     s.advanceHandler(workflow.PhaseRequirements),
		},
		{
			Name:        ToolCreateDesign,
			Description: "Generate the design document and advance the project",
			InputSchema: phaseToolSchema(),
			Handler:     s.advanceHandler(workflow.PhaseDesign),
		},
		{
			Name:        ToolCreateTasks,
			Description: "Generate the task breakdown and advance the project",
			InputSchema: phaseToolSchema(),
			Handler:     s.advanceHandler(workflow.PhaseTasks),
		},
		{
			Name:        ToolApprovePhase,
			Description: "Record human approval for a generated phase artifact",
			InputSchema: registry.ObjectSchema(map[string]*registry.Property{
				"project_id": {Type: "string", Description: "Project identifier"},
				"phase": {
					Type:        "string",
					Description: "Phase whose artifact is approved",
					Enum: []interface{}{
						string(workflow.PhaseRequirements),
						string(workflow.PhaseDesign),
						string(workflow.PhaseTasks),
					},
				},
			}, "project_id", "phase"),
			Handler: registry.HandlerFunc(s.approvePhase),
		},
		{
			Name:        ToolStatus,
			Description: "Report a project's phase and approval record",
			InputSchema: phaseToolSchema(),
			Handler:     registry.HandlerFunc(s.status),
		},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func phaseToolSchema() *registry.Schema {
	return registry.ObjectSchema(map[string]*registry.Property{
		"project_id": {Type: "string", Description: "Project identifier"},
	}, "project_id")
}

func (s *Service) projectCreate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := args["name"].(string)
	description, _ := args["description"].(string)

	project := workflow.NewProject(uuid.NewString(), name, description)
	if err := s.store.Save(project); err != nil {
		return nil, err
	}

	s.logger.Info("project created", log.ProjectIDKey, project.ID, "name", name)
	return projectView(project), nil
}

func (s *Service) projectList(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projects, err := s.store.List()
	if err != nil {
		return nil, err
	}

	views := make([]map[string]interface{}, 0, len(projects))
	for _, project := range projects {
		views = append(views, projectView(project))
	}
	return map[string]interface{}{"projects": views}, nil
}

// advanceHandler builds the phase-advancing handler for target. The gate
// decides; on refusal the handler fails with the gate's reason verbatim.
func (s *Service) advanceHandler(target workflow.Phase) registry.Handler {
	return registry.HandlerFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		projectID := args["project_id"].(string)

		project, err := s.store.Load(projectID)
		if err != nil {
			return nil, err
		}

		if err := project.Advance(target); err != nil {
			return nil, err
		}

		document, err := s.renderer.Render(ctx, project, target)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", target.Artifact(), err)
		}

		if err := s.store.Save(project); err != nil {
			return nil, err
		}

		s.logger.Info("project advanced",
			log.ProjectIDKey, project.ID,
			log.PhaseKey, string(target))

		view := projectView(project)
		view["document"] = document
		return view, nil
	})
}

func (s *Service) approvePhase(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := args["project_id"].(string)
	phase := workflow.Phase(args["phase"].(string))

	project, err := s.store.Load(projectID)
	if err != nil {
		return nil, err
	}

	if err := project.Approve(phase); err != nil {
		return nil, err
	}

	// Approving the task breakdown is the last human gate; once it is in
	// place the project moves to implementation-ready.
	if phase == workflow.PhaseTasks && project.Phase == workflow.PhaseTasks {
		if err := project.Advance(workflow.PhaseImplementationReady); err != nil {
			return nil, err
		}
	}

	if err := s.store.Save(project); err != nil {
		return nil, err
	}

	s.logger.Info("phase approved",
		log.ProjectIDKey, project.ID,
		log.PhaseKey, string(phase))

	return projectView(project), nil
}

func (s *Service) status(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projectID := args["project_id"].(string)

	project, err := s.store.Load(projectID)
	if err != nil {
		return nil, err
	}

	view := projectView(project)
	if next := project.Phase.Next(); next != "" {
		decision := workflow.CanTransition(project.Phase, next, project.Approvals)
		view["next_phase"] = string(next)
		view["next_phase_allowed"] = decision.Allowed
		if !decision.Allowed {
			view["next_phase_blocked_by"] = decision.Reason
		}
	}
	return view, nil
}

func projectView(project *workflow.Project) map[string]interface{} {
	approvals := make(map[string]interface{}, len(workflow.GatedPhases))
	for _, phase := range workflow.GatedPhases {
		state := project.Approvals.State(phase)
		approvals[phase.Artifact()] = map[string]bool{
			"generated": state.Generated,
			"approved":  state.Approved,
		}
	}

	return map[string]interface{}{
		"id":          project.ID,
		"name":        project.Name,
		"description": project.Description,
		"phase":       string(project.Phase),
		"approvals":   approvals,
		"created_at":  project.CreatedAt,
		"updated_at":  project.UpdatedAt,
	}
}
