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

import "fmt"

// ApprovalState records whether a gated phase's artifact has been generated
// and whether a human has approved it. Approval is independent metadata:
// generation gates every forward transition, approval only the final one.
type ApprovalState struct {
	Generated bool `json:"generated"`
	Approved  bool `json:"approved"`
}

// Approvals is the per-project approval record, one entry per gated phase.
type Approvals struct {
	Requirements ApprovalState `json:"requirements"`
	Design       ApprovalState `json:"design"`
	Tasks        ApprovalState `json:"tasks"`
}

// State returns the approval state for a gated phase. Ungated phases report
// a zero state.
func (a Approvals) State(p Phase) ApprovalState {
	switch p {
	case PhaseRequirements:
		return a.Requirements
	case PhaseDesign:
		return a.Design
	case PhaseTasks:
		return a.Tasks
	}
	return ApprovalState{}
}

// Decision is the gate's answer. When Allowed is false, Reason names the
// first unmet prerequisite, never a bare refusal.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanTransition decides whether a project at current may move to target
// given its approval record. The function is pure and total: every input
// combination yields a definite answer and it never panics.
//
// A transition to target is allowed only if target is the immediate
// successor of current (or current itself, for revision re-entry) and every
// gated phase strictly before target has been generated. The final
// transition to implementation-ready additionally requires the tasks
// artifact to be approved.
func CanTransition(current, target Phase, approvals Approvals) Decision {
	if !current.Valid() {
		return Decision{Reason: fmt.Sprintf("unknown current phase %q", string(current))}
	}
	if !target.Valid() {
		return Decision{Reason: fmt.Sprintf("unknown target phase %q", string(target))}
	}

	curIdx := current.Index()
	tgtIdx := target.Index()

	// Phases never move backward.
	if tgtIdx < curIdx {
		return Decision{Reason: fmt.Sprintf("cannot move backward from %s to %s", current, target)}
	}

	// Forward motion is one phase at a time; a skip is reported by naming
	// the first missing prerequisite rather than the skip itself.
	if tgtIdx > curIdx+1 {
		if d := checkPrerequisites(target, approvals); !d.Allowed {
			return d
		}
		return Decision{Reason: fmt.Sprintf("%s is not the next phase after %s", target, current)}
	}

	if d := checkPrerequisites(target, approvals); !d.Allowed {
		return d
	}

	if target == PhaseImplementationReady && !approvals.Tasks.Approved {
		return Decision{Reason: "tasks must be approved before implementation"}
	}

	return Decision{Allowed: true}
}

// checkPrerequisites verifies that every gated phase strictly before target
// has generated=true, reporting the first unmet one by name.
func checkPrerequisites(target Phase, approvals Approvals) Decision {
	tgtIdx := target.Index()
	for _, gated := range GatedPhases {
		if gated.Index() >= tgtIdx {
			break
		}
		if !approvals.State(gated).Generated {
			name := target.Artifact()
			if name == "" {
				name = string(target)
			}
			return Decision{Reason: fmt.Sprintf("%s must be generated before %s", gated.Artifact(), name)}
		}
	}
	return Decision{Allowed: true}
}
