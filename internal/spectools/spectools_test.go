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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/blueprint/internal/registry"
	"github.com/tombee/blueprint/internal/workflow"
)

func newTestService(t *testing.T) (*Service, *registry.Registry, workflow.Store) {
	t.Helper()

	store := workflow.NewFileStore(t.TempDir())
	svc := NewService(store, nil, nil)
	reg := registry.New(nil)
	require.NoError(t, svc.RegisterAll(reg))
	return svc, reg, store
}

func execute(t *testing.T, reg *registry.Registry, tool string, args map[string]interface{}) registry.ExecutionResult {
	t.Helper()
	return reg.Execute(context.Background(), registry.ExecutionContext{
		SessionID:     "s1",
		Tool:          tool,
		Arguments:     args,
		CorrelationID: "c1",
	})
}

func createProject(t *testing.T, reg *registry.Registry, name string) string {
	t.Helper()

	result := execute(t, reg, ToolProjectCreate, map[string]interface{}{"name": name})
	require.True(t, result.Success, "project-create failed: %s", result.Error)
	view := result.Data.(map[string]interface{})
	return view["id"].(string)
}

func TestRegisterAll(t *testing.T) {
	_, reg, _ := newTestService(t)

	names := make([]string, 0)
	for _, info := range reg.List() {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolProjectCreate, ToolProjectList,
		ToolCreateRequirements, ToolCreateDesign, ToolCreateTasks,
		ToolApprovePhase, ToolStatus,
	}, names)
}

func TestProjectCreate(t *testing.T) {
	_, reg, store := newTestService(t)

	id := createProject(t, reg, "billing revamp")

	project, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "billing revamp", project.Name)
	assert.Equal(t, workflow.PhaseInit, project.Phase)
}

func TestProjectCreate_NullName(t *testing.T) {
	_, reg, _ := newTestService(t)

	result := execute(t, reg, ToolProjectCreate, map[string]interface{}{"name": nil})

	assert.False(t, result.Success)
	assert.Equal(t, "validation", result.ErrorType)
	assert.Equal(t, []string{"name"}, result.ViolatingFields)
}

func TestProjectList(t *testing.T) {
	_, reg, _ := newTestService(t)

	createProject(t, reg, "one")
	createProject(t, reg, "two")

	result := execute(t, reg, ToolProjectList, nil)
	require.True(t, result.Success, result.Error)
	view := result.Data.(map[string]interface{})
	assert.Len(t, view["projects"], 2)
}

func TestWorkflowHappyPath(t *testing.T) {
	_, reg, store := newTestService(t)
	id := createProject(t, reg, "demo")
	args := map[string]interface{}{"project_id": id}

	for _, tool := range []string{ToolCreateRequirements, ToolCreateDesign, ToolCreateTasks} {
		result := execute(t, reg, tool, args)
		require.True(t, result.Success, "%s failed: %s", tool, result.Error)

		view := result.Data.(map[string]interface{})
		assert.NotEmpty(t, view["document"], "%s returned no document", tool)
	}

	project, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseTasks, project.Phase)
	assert.True(t, project.Approvals.Tasks.Generated)
	assert.False(t, project.Approvals.Tasks.Approved)

	result := execute(t, reg, ToolApprovePhase, map[string]interface{}{
		"project_id": id,
		"phase":      string(workflow.PhaseTasks),
	})
	require.True(t, result.Success, result.Error)

	project, err = store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseImplementationReady, project.Phase)
	assert.True(t, project.Approvals.Tasks.Approved)
}

func TestSkipPhaseBlocked(t *testing.T) {
	_, reg, store := newTestService(t)
	id := createProject(t, reg, "demo")

	result := execute(t, reg, ToolCreateTasks, map[string]interface{}{"project_id": id})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "requirements must be generated before tasks")

	// A refused transition changes nothing.
	project, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseInit, project.Phase)
}

func TestApproveBeforeGenerate(t *testing.T) {
	_, reg, _ := newTestService(t)
	id := createProject(t, reg, "demo")

	result := execute(t, reg, ToolApprovePhase, map[string]interface{}{
		"project_id": id,
		"phase":      string(workflow.PhaseDesign),
	})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "design must be generated")
}

func TestApprovePhase_RejectsUnknownPhase(t *testing.T) {
	_, reg, _ := newTestService(t)
	id := createProject(t, reg, "demo")

	result := execute(t, reg, ToolApprovePhase, map[string]interface{}{
		"project_id": id,
		"phase":      "nonsense",
	})
	require.False(t, result.Success)
	assert.Equal(t, []string{"phase"}, result.ViolatingFields)
}

func TestUnknownProject(t *testing.T) {
	_, reg, _ := newTestService(t)

	result := execute(t, reg, ToolStatus, map[string]interface{}{"project_id": "missing"})
	require.False(t, result.Success)
	assert.Equal(t, "not_found", result.ErrorType)
}

func TestStatus_RejectsTraversalProjectID(t *testing.T) {
	_, reg, _ := newTestService(t)

	result := execute(t, reg, ToolStatus, map[string]interface{}{"project_id": "../secret"})

	assert.False(t, result.Success)
	assert.Equal(t, "validation", result.ErrorType)
	assert.Contains(t, result.Error, "path separators")
}

func TestStatus(t *testing.T) {
	_, reg, _ := newTestService(t)
	id := createProject(t, reg, "demo")
	args := map[string]interface{}{"project_id": id}

	require.True(t, execute(t, reg, ToolCreateRequirements, args).Success)

	result := execute(t, reg, ToolStatus, args)
	require.True(t, result.Success, result.Error)

	view := result.Data.(map[string]interface{})
	assert.Equal(t, string(workflow.PhaseRequirements), view["phase"])
	assert.Equal(t, string(workflow.PhaseDesign), view["next_phase"])
	assert.Equal(t, true, view["next_phase_allowed"])
}

func TestStatus_ReportsBlockedTransition(t *testing.T) {
	_, reg, store := newTestService(t)
	id := createProject(t, reg, "demo")
	args := map[string]interface{}{"project_id": id}

	for _, tool := range []string{ToolCreateRequirements, ToolCreateDesign, ToolCreateTasks} {
		require.True(t, execute(t, reg, tool, args).Success)
	}

	// Tasks generated but not approved: implementation-ready is blocked.
	result := execute(t, reg, ToolStatus, args)
	require.True(t, result.Success, result.Error)

	view := result.Data.(map[string]interface{})
	assert.Equal(t, false, view["next_phase_allowed"])
	assert.Contains(t, view["next_phase_blocked_by"], "tasks must be approved")

	project, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseTasks, project.Phase)
}

func TestCustomRenderer(t *testing.T) {
	store := workflow.NewFileStore(t.TempDir())
	svc := NewService(store, RendererFunc(func(ctx context.Context, project *workflow.Project, phase workflow.Phase) (string, error) {
		return "custom " + phase.Artifact(), nil
	}), nil)
	reg := registry.New(nil)
	require.NoError(t, svc.RegisterAll(reg))

	id := createProject(t, reg, "demo")
	result := execute(t, reg, ToolCreateRequirements, map[string]interface{}{"project_id": id})
	require.True(t, result.Success, result.Error)

	view := result.Data.(map[string]interface{})
	assert.Equal(t, "custom requirements", view["document"])
}
