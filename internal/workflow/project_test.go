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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/blueprint/pkg/errors"
)

func TestNewProject_StartsAtInit(t *testing.T) {
	p := NewProject("p1", "demo", "a demo project")

	if p.Phase != PhaseInit {
		t.Errorf("Phase = %s, want init", p.Phase)
	}
	if p.Approvals.Requirements.Generated {
		t.Error("fresh project should have nothing generated")
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestProject_AdvanceWalksFullPipeline(t *testing.T) {
	p := NewProject("p1", "demo", "")

	for _, target := range []Phase{PhaseRequirements, PhaseDesign, PhaseTasks} {
		if err := p.Advance(target); err != nil {
			t.Fatalf("Advance(%s) failed: %v", target, err)
		}
		if p.Phase != target {
			t.Errorf("Phase = %s, want %s", p.Phase, target)
		}
		if !p.Approvals.State(target).Generated {
			t.Errorf("advancing to %s should mark it generated", target)
		}
	}

	// Final transition still needs tasks approval.
	if err := p.Advance(PhaseImplementationReady); err == nil {
		t.Fatal("implementation-ready should require approved tasks")
	}
	if err := p.Approve(PhaseTasks); err != nil {
		t.Fatalf("Approve(tasks) failed: %v", err)
	}
	if err := p.Advance(PhaseImplementationReady); err != nil {
		t.Fatalf("Advance(implementation-ready) failed: %v", err)
	}
}

func TestProject_AdvanceSkipReturnsGateReason(t *testing.T) {
	p := NewProject("p1", "demo", "")

	err := p.Advance(PhaseTasks)
	if err == nil {
		t.Fatal("skip should fail")
	}
	if !strings.Contains(err.Error(), "requirements") {
		t.Errorf("error should carry the gate reason, got %q", err.Error())
	}
	if p.Phase != PhaseInit {
		t.Errorf("failed advance must not move the phase, got %s", p.Phase)
	}
}

func TestProject_ApproveRequiresGeneration(t *testing.T) {
	p := NewProject("p1", "demo", "")

	if err := p.Approve(PhaseRequirements); err == nil {
		t.Error("approving an ungenerated artifact should fail")
	}
	if err := p.Approve(PhaseInit); err == nil {
		t.Error("init has no approvable artifact")
	}

	if err := p.Advance(PhaseRequirements); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := p.Approve(PhaseRequirements); err != nil {
		t.Errorf("Approve after generation failed: %v", err)
	}
	if !p.Approvals.Requirements.Approved {
		t.Error("approval flag not set")
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	store := NewFileStore(t.TempDir())

	original := NewProject("api-gateway", "API Gateway", "edge routing")
	if err := original.Advance(PhaseRequirements); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if err := store.Save(original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("api-gateway")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Phase != PhaseRequirements {
		t.Errorf("Phase = %s, want requirements-generated", loaded.Phase)
	}
	if !loaded.Approvals.Requirements.Generated {
		t.Error("approval record not round-tripped")
	}
}

func TestFileStore_LoadUnknown(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.Load("ghost")
	if !errors.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestFileStore_SaveRejectsBadIDs(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if err := store.Save(NewProject("", "x", "")); !errors.IsValidation(err) {
		t.Errorf("empty id should be a validation error, got %v", err)
	}
	if err := store.Save(NewProject("a/b", "x", "")); !errors.IsValidation(err) {
		t.Errorf("path separator in id should be a validation error, got %v", err)
	}
}

func TestFileStore_LoadRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(filepath.Join(root, "projects"))

	// A project document sitting outside the store root must stay
	// unreachable no matter what id a client supplies.
	outside := filepath.Join(root, "secret")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := []byte(`{"id":"secret","name":"leaked"}`)
	if err := os.WriteFile(filepath.Join(outside, projectFile), doc, 0o644); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"../secret", "..", ".", `..\secret`, ""} {
		if _, err := store.Load(id); !errors.IsValidation(err) {
			t.Errorf("Load(%q) should be a validation error, got %v", id, err)
		}
		if err := store.Delete(id); !errors.IsValidation(err) {
			t.Errorf("Delete(%q) should be a validation error, got %v", id, err)
		}
	}
}

func TestFileStore_ListSorted(t *testing.T) {
	store := NewFileStore(t.TempDir())

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := store.Save(NewProject(id, id, "")); err != nil {
			t.Fatalf("Save(%s) failed: %v", id, err)
		}
	}

	projects, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("len = %d, want 3", len(projects))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if projects[i].ID != want {
			t.Errorf("projects[%d] = %s, want %s", i, projects[i].ID, want)
		}
	}
}

func TestFileStore_ListEmptyRoot(t *testing.T) {
	store := NewFileStore(t.TempDir() + "/nonexistent")

	projects, err := store.List()
	if err != nil {
		t.Fatalf("List on missing root should not fail: %v", err)
	}
	if projects != nil {
		t.Errorf("expected no projects, got %d", len(projects))
	}
}

func TestFileStore_Delete(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if err := store.Save(NewProject("doomed", "x", "")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("doomed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load("doomed"); !errors.IsNotFound(err) {
		t.Error("project should be gone after delete")
	}
	if err := store.Delete("doomed"); !errors.IsNotFound(err) {
		t.Errorf("double delete should be not found, got %v", err)
	}
}
