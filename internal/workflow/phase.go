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

// Package workflow implements the phase-gated development workflow: the
// ordered project phases, the approval record, and the pure gate function
// that decides whether a phase transition is permitted.
package workflow

// Phase is a project's position in the fixed workflow order.
type Phase string

const (
	PhaseInit                Phase = "init"
	PhaseRequirements        Phase = "requirements-generated"
	PhaseDesign              Phase = "design-generated"
	PhaseTasks               Phase = "tasks-generated"
	PhaseImplementationReady Phase = "implementation-ready"
)

// PhaseOrder is the fixed total order phases advance along.
// Phase values only ever move forward in this order.
var PhaseOrder = []Phase{
	PhaseInit,
	PhaseRequirements,
	PhaseDesign,
	PhaseTasks,
	PhaseImplementationReady,
}

// Index returns the ordinal position of p in PhaseOrder, or -1 if p is not
// a known phase.
func (p Phase) Index() int {
	for i, phase := range PhaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p in the order, or empty when p is the final
// phase or unknown.
func (p Phase) Next() Phase {
	idx := p.Index()
	if idx < 0 || idx >= len(PhaseOrder)-1 {
		return ""
	}
	return PhaseOrder[idx+1]
}

// Artifact returns the short artifact name a gated phase produces
// (requirements, design, tasks). Ungated phases have no artifact.
func (p Phase) Artifact() string {
	switch p {
	case PhaseRequirements:
		return "requirements"
	case PhaseDesign:
		return "design"
	case PhaseTasks:
		return "tasks"
	}
	return ""
}

// GatedPhases are the phases that carry a generated/approved record, in
// workflow order.
var GatedPhases = []Phase{PhaseRequirements, PhaseDesign, PhaseTasks}
