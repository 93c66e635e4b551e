package matrix

import "github.com/coordinatio/TFS-excel-docx-generate/internal/task"

// Assignment is the work of one person on one release.
type Assignment struct {
	Release  string
	Assignee string
	Tasks    []task.Task
}

// Assignments groups the matrix by release, then assignee. Releases come in
// sorted order followed by DefaultRelease; assignees in registration order.
// Empty groups are skipped.
func Assignments(m *Matrix) []Assignment {
	var out []Assignment

	for _, rel := range append(m.Releases(), DefaultRelease) {
		for _, person := range m.Assignees() {
			tasks, err := m.Tasks(person, rel)
			if err != nil || len(tasks) == 0 {
				continue
			}

			out = append(out, Assignment{Release: rel, Assignee: person, Tasks: tasks})
		}
	}

	return out
}
