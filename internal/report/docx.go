package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lukasjarosch/go-docx"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// Kind selects the phrasing of a document.
type Kind string

// Document kinds. The value is also the template subdirectory.
const (
	KindTodo Kind = "todo"
	KindDone Kind = "done"
)

// Kinds lists every document kind in bundle order.
var Kinds = []Kind{KindTodo, KindDone}

// ErrTemplateMissing reports that no template exists for a product.
var ErrTemplateMissing = errors.New("document template missing")

const docDateLayout = "02.01.2006"

// Documents fills per-person templates found at <dir>/<kind>/<PRODUCT>.docx.
//
// Templates may use these placeholders: {assignee}, {release}, {period},
// {tasks} and {dates}.
type Documents struct {
	dir string
}

// NewDocuments returns a renderer reading templates from dir.
func NewDocuments(dir string) *Documents {
	return &Documents{dir: dir}
}

// TemplatePath returns where the template for kind and release lives.
func (d *Documents) TemplatePath(kind Kind, release string) string {
	return filepath.Join(d.dir, string(kind), matrix.Family(release)+".docx")
}

// Render fills the template for one assignment.
func (d *Documents) Render(kind Kind, a matrix.Assignment, from, to string) ([]byte, error) {
	path := d.TemplatePath(kind, a.Release)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
	}

	doc, err := docx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	defer doc.Close()

	err = doc.ReplaceAll(Placeholders(kind, a, from, to))
	if err != nil {
		return nil, fmt.Errorf("fill template %s: %w", path, err)
	}

	var buf bytes.Buffer

	err = doc.Write(&buf)
	if err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	return buf.Bytes(), nil
}

// Placeholders returns the template values for one assignment.
func Placeholders(kind Kind, a matrix.Assignment, from, to string) docx.PlaceholderMap {
	return docx.PlaceholderMap{
		"assignee": a.Assignee,
		"release":  a.Release,
		"period":   from + " - " + to,
		"tasks":    taskLines(kind, a.Tasks),
		"dates":    dateRange(a.Tasks, from, to),
	}
}

func taskLines(kind Kind, tasks []task.Task) string {
	lines := make([]string, 0, len(tasks))

	for _, t := range tasks {
		text := t.Essence
		if kind == KindDone {
			text = t.EssenceCompleted
		}

		if text == "" {
			text = t.Title
		}

		lines = append(lines, text)
	}

	return strings.Join(lines, ";\n")
}

// dateRange spans the earliest start to the latest completion of tasks,
// falling back to the period bounds where dates are unknown.
func dateRange(tasks []task.Task, from, to string) string {
	var first, last time.Time

	for _, t := range tasks {
		if !t.Created.IsZero() && (first.IsZero() || t.Created.Before(first)) {
			first = t.Created
		}

		if t.Closed.After(last) {
			last = t.Closed
		}
	}

	start, end := strings.ReplaceAll(from, "-", "."), strings.ReplaceAll(to, "-", ".")

	if !first.IsZero() {
		start = first.Format(docDateLayout)
	}

	if !last.IsZero() {
		end = last.Format(docDateLayout)
	}

	return start + " - " + end
}
