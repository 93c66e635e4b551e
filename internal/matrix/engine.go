package matrix

import (
	"fmt"
	"math"
	"strings"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// Row annotations shown on the name cell.
const (
	MsgNoTasks     = "No tasks in the reporting period, fix the tasks in the tracker and regenerate the report."
	MsgUnknownName = "Name is missing from the names reference, accounting automation will break."
)

const (
	// Fixed shares at or below this are treated as absent.
	predefinedEpsilon = 1e-4
	// Overhead shares from this up are mentioned in cell comments.
	commentEpsilon = 1e-5
	// Cells below this are written as exactly zero.
	zeroCutoff = 1e-4
)

// Renderer receives the cells of a report. Columns and rows are zero-based.
type Renderer interface {
	WriteCell(col, row int, value string) error
	WritePercentage(col, row int, fraction float64) error
	WriteHighlighted(col, row int, value string) error
	WriteComment(col, row int, text string) error
}

// Percentage returns the share of a person's time spent on one release.
//
// With no tasks at all the fixed shares are scaled up to fill the whole
// person. Otherwise the task ratio fills whatever the fixed shares leave.
func Percentage(inRelease, total int, predefined, totalPredefined float64) float64 {
	var p float64

	switch {
	case total == 0 && totalPredefined > predefinedEpsilon:
		p = predefined / totalPredefined
	case total == 0:
		p = 0
	default:
		p = predefined + float64(inRelease)/float64(total)*(1-totalPredefined)
	}

	return math.Round(p*1e7) / 1e7
}

// CellComment lists the tasks behind a cell, preceded by a note on fixed
// overhead when there is any.
func CellComment(predefined float64, tasks []task.Task) string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Title, t.Link))
	}

	list := strings.Join(lines, "\n")

	if predefined < commentEpsilon {
		return list
	}

	note := fmt.Sprintf("%.0f%% of management overhead accounted for this release", predefined*100)
	if list == "" {
		return note
	}

	return note + "\n\n" + list
}

// RowNote returns the annotation for a name cell and whether the row needs
// attention.
func RowNote(total int, known bool) (string, bool) {
	var notes []string

	if total == 0 {
		notes = append(notes, MsgNoTasks)
	}

	if !known {
		notes = append(notes, MsgUnknownName)
	}

	return strings.Join(notes, "\n\n"), len(notes) > 0
}

// Render emits the whole report: a header row with the sorted releases and
// DefaultRelease, then one row per assignee in registration order.
func Render(r Renderer, m *Matrix, spend *SpendModel) error {
	releases := append(m.Releases(), DefaultRelease)

	err := r.WriteCell(0, 0, "")
	if err != nil {
		return err
	}

	for i, rel := range releases {
		err = r.WriteCell(i+1, 0, rel)
		if err != nil {
			return err
		}
	}

	for y, person := range m.Assignees() {
		err = renderRow(r, m, spend, releases, person, y+1)
		if err != nil {
			return fmt.Errorf("render %q: %w", person, err)
		}
	}

	return nil
}

func renderRow(r Renderer, m *Matrix, spend *SpendModel, releases []string, person string, y int) error {
	total, err := m.Total(person)
	if err != nil {
		return err
	}

	known, err := m.Known(person)
	if err != nil {
		return err
	}

	if note, flagged := RowNote(total, known); flagged {
		err = r.WriteHighlighted(0, y, person)
		if err == nil {
			err = r.WriteComment(0, y, note)
		}
	} else {
		err = r.WriteCell(0, y, person)
	}

	if err != nil {
		return err
	}

	for i, rel := range releases {
		tasks, err := m.Tasks(person, rel)
		if err != nil {
			return err
		}

		predefined := spend.Fraction(person, rel)

		p := Percentage(len(tasks), total, predefined, spend.Total(person))
		if p < zeroCutoff {
			p = 0
		}

		err = r.WritePercentage(i+1, y, p)
		if err != nil {
			return err
		}

		if comment := CellComment(predefined, tasks); comment != "" {
			err = r.WriteComment(i+1, y, comment)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
