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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/blueprint/internal/protocol"
	"github.com/tombee/blueprint/internal/workflow"
	"github.com/tombee/blueprint/pkg/errors"
)

const (
	projectsURI      = "blueprint://projects"
	projectURIPrefix = "blueprint://projects/"
	projectURISuffix = "/status"
)

// Resources exposes the project table as addressable resources:
// blueprint://projects for the index, blueprint://projects/<id>/status for
// one project's phase and approval record.
type Resources struct {
	store workflow.Store
}

// NewResources creates the built-in resource provider.
func NewResources(store workflow.Store) *Resources {
	return &Resources{store: store}
}

// ListResources enumerates the project index plus one status resource per
// project.
func (r *Resources) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	projects, err := r.store.List()
	if err != nil {
		return nil, err
	}

	resources := []protocol.Resource{{
		URI:         projectsURI,
		Name:        "projects",
		Description: "All workflow projects and their phases",
		MimeType:    "application/json",
	}}
	for _, project := range projects {
		resources = append(resources, protocol.Resource{
			URI:         statusURI(project.ID),
			Name:        project.Name,
			Description: fmt.Sprintf("Status of project %s", project.Name),
			MimeType:    "application/json",
		})
	}
	return resources, nil
}

// ReadResource resolves one resource URI to its JSON content.
func (r *Resources) ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	switch {
	case uri == projectsURI:
		projects, err := r.store.List()
		if err != nil {
			return nil, err
		}
		views := make([]map[string]interface{}, 0, len(projects))
		for _, project := range projects {
			views = append(views, projectView(project))
		}
		return jsonContents(uri, views)

	case strings.HasPrefix(uri, projectURIPrefix) && strings.HasSuffix(uri, projectURISuffix):
		id := strings.TrimSuffix(strings.TrimPrefix(uri, projectURIPrefix), projectURISuffix)
		project, err := r.store.Load(id)
		if err != nil {
			return nil, err
		}
		return jsonContents(uri, projectView(project))

	default:
		return nil, &errors.NotFoundError{Resource: "resource", ID: uri}
	}
}

func statusURI(projectID string) string {
	return projectURIPrefix + projectID + projectURISuffix
}

func jsonContents(uri string, v interface{}) ([]protocol.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []protocol.ResourceContents{{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}}, nil
}
