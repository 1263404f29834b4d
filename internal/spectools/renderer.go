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
	"strings"

	"github.com/tombee/blueprint/internal/workflow"
)

// Renderer produces the document artifact for a workflow phase. Document
// templating is an external concern; the dispatch core forwards whatever
// the renderer returns without inspecting it.
type Renderer interface {
	Render(ctx context.Context, project *workflow.Project, phase workflow.Phase) (string, error)
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(ctx context.Context, project *workflow.Project, phase workflow.Phase) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, project *workflow.Project, phase workflow.Phase) (string, error) {
	return f(ctx, project, phase)
}

// MarkdownRenderer is the default renderer: it emits a minimal markdown
// skeleton for the phase artifact.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (MarkdownRenderer) Render(_ context.Context, project *workflow.Project, phase workflow.Phase) (string, error) {
	artifact := phase.Artifact()
	if artifact == "" {
		return "", fmt.Errorf("phase %s has no artifact", phase)
	}

	var b strings.Builder
	title := strings.ToUpper(artifact[:1]) + artifact[1:]
	fmt.Fprintf(&b, "# %s — %s\n\n", title, project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", project.Description)
	}
	fmt.Fprintf(&b, "## Overview\n\n_Draft %s for %s. Refine before approval._\n", artifact, project.Name)
	return b.String(), nil
}
