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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tombee/blueprint/pkg/errors"
)

// Store persists projects. The gate itself never writes; only the
// phase-advancing tool handlers mutate projects through a Store.
type Store interface {
	Load(id string) (*Project, error)
	Save(project *Project) error
	List() ([]*Project, error)
	Delete(id string) error
}

const projectFile = "project.json"

// FileStore keeps one JSON document per project under a root directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a project store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Load reads a project by id. Returns a NotFoundError when no project
// exists under that id.
func (s *FileStore) Load(id string) (*Project, error) {
	if err := validID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "project", ID: id}
		}
		return nil, fmt.Errorf("reading project %s: %w", id, err)
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing project %s: %w", id, err)
	}

	return &project, nil
}

// Save writes the project document, creating its directory if needed.
func (s *FileStore) Save(project *Project) error {
	if project == nil {
		return &errors.ValidationError{Field: "id", Message: "project must not be nil"}
	}
	if err := validID(project.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, project.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating project dir: %w", err)
	}

	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", project.ID, err)
	}

	if err := os.WriteFile(filepath.Join(dir, projectFile), data, 0o644); err != nil {
		return fmt.Errorf("writing project %s: %w", project.ID, err)
	}

	return nil
}

// List returns all stored projects sorted by id.
func (s *FileStore) List() ([]*Project, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.root)
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var projects []*Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project, err := s.Load(entry.Name())
		if err != nil {
			// Skip directories without a readable project document.
			continue
		}
		projects = append(projects, project)
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

// Delete removes a project and its directory.
func (s *FileStore) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &errors.NotFoundError{Resource: "project", ID: id}
	}
	return os.RemoveAll(dir)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, id, projectFile)
}

// validID rejects ids that would escape the store root once joined into
// a path. Every entry point that takes an id goes through this.
func validID(id string) error {
	if id == "" {
		return &errors.ValidationError{Field: "id", Message: "project id must not be empty"}
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return &errors.ValidationError{Field: "id", Message: "project id must not contain path separators"}
	}
	return nil
}
