// Package matrix turns a task list into per-person, per-release time shares.
//
// The flow is: [New] counts tasks per assignee and release, [NewSpendModel]
// expands fixed management overhead onto releases, and [Render] walks both
// in a fixed order to emit cells to a [Renderer].
package matrix

import (
	"errors"
	"fmt"
	"slices"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/names"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// DefaultRelease addresses the bucket of tasks that belong to no release.
const DefaultRelease = "DEFAULT"

// Query errors.
var (
	ErrAssigneeNotFound = errors.New("assignee not found")
	ErrReleaseNotFound  = errors.New("release not found")
)

type row struct {
	known    bool
	total    int
	releases map[string][]task.Task
	fallback []task.Task
}

// Matrix counts tasks per canonical assignee and release.
// It is built once and never mutated afterwards.
type Matrix struct {
	order    []string
	rows     map[string]*row
	releases []string
}

// New builds a matrix from tasks. Assignee names are normalized through n;
// every canonical name of the reference gets a row even without tasks.
// Broken tasks are rejected with an error wrapping task.ErrBroken.
func New(tasks []task.Task, n *names.Normalizer) (*Matrix, error) {
	err := task.Validate(tasks)
	if err != nil {
		return nil, err
	}

	m := &Matrix{rows: make(map[string]*row)}
	releases := make(map[string]struct{})

	for _, t := range tasks {
		if t.Release != "" {
			releases[t.Release] = struct{}{}
		}

		seen := make(map[string]struct{}, len(t.Assignees))

		for _, raw := range t.Assignees {
			canonical, known := n.Normalize(raw)
			if _, dup := seen[canonical]; dup {
				continue
			}

			seen[canonical] = struct{}{}

			r := m.register(canonical, known)
			r.total++

			if t.Release == "" {
				r.fallback = append(r.fallback, t)
			} else {
				r.releases[t.Release] = append(r.releases[t.Release], t)
			}
		}
	}

	for _, canonical := range n.Targets() {
		m.register(canonical, true)
	}

	m.releases = make([]string, 0, len(releases))
	for r := range releases {
		m.releases = append(m.releases, r)
	}

	slices.Sort(m.releases)

	return m, nil
}

func (m *Matrix) register(name string, known bool) *row {
	if r, ok := m.rows[name]; ok {
		return r
	}

	r := &row{known: known, releases: make(map[string][]task.Task)}
	m.rows[name] = r
	m.order = append(m.order, name)

	return r
}

// Releases returns every non-empty release seen in the input, sorted.
func (m *Matrix) Releases() []string {
	return slices.Clone(m.releases)
}

// Assignees returns canonical names in registration order.
func (m *Matrix) Assignees() []string {
	return slices.Clone(m.order)
}

func (m *Matrix) row(person string) (*row, error) {
	r, ok := m.rows[person]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAssigneeNotFound, person)
	}

	return r, nil
}

// Tasks returns the tasks of person in release. DefaultRelease addresses the
// default bucket.
func (m *Matrix) Tasks(person, release string) ([]task.Task, error) {
	r, err := m.row(person)
	if err != nil {
		return nil, err
	}

	if release == DefaultRelease {
		return slices.Clone(r.fallback), nil
	}

	if _, ok := slices.BinarySearch(m.releases, release); !ok {
		return nil, fmt.Errorf("%w: %q", ErrReleaseNotFound, release)
	}

	return slices.Clone(r.releases[release]), nil
}

// Count returns how many tasks person has in release.
func (m *Matrix) Count(person, release string) (int, error) {
	tasks, err := m.Tasks(person, release)
	if err != nil {
		return 0, err
	}

	return len(tasks), nil
}

// Total returns how many distinct tasks person has across all releases.
func (m *Matrix) Total(person string) (int, error) {
	r, err := m.row(person)
	if err != nil {
		return 0, err
	}

	return r.total, nil
}

// Known reports whether person was resolved through the names reference.
func (m *Matrix) Known(person string) (bool, error) {
	r, err := m.row(person)
	if err != nil {
		return false, err
	}

	return r.known, nil
}
