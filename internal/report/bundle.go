package report

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
)

// SpreadsheetName is the bundle entry holding the allocation table.
const SpreadsheetName = "time_report.xlsx"

// DocumentRenderer fills one document for an assignment.
type DocumentRenderer interface {
	Render(kind Kind, a matrix.Assignment, from, to string) ([]byte, error)
}

// Bundle writes a zip with the spreadsheet and, for every release and
// assignee, one document per kind at <kind>/<release>/<assignee>.docx.
func Bundle(w io.Writer, m *matrix.Matrix, spend *matrix.SpendModel, docs DocumentRenderer, from, to string) error {
	sheet, err := Spreadsheet(m, spend, from, to)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	err = addEntry(zw, SpreadsheetName, sheet)
	if err != nil {
		return err
	}

	for _, a := range matrix.Assignments(m) {
		for _, kind := range Kinds {
			data, err := docs.Render(kind, a, from, to)
			if err != nil {
				return fmt.Errorf("%s document for %s/%s: %w", kind, a.Release, a.Assignee, err)
			}

			err = addEntry(zw, DocumentPath(kind, a), data)
			if err != nil {
				return err
			}
		}
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}

	return nil
}

// DocumentPath returns the bundle entry name of a document.
func DocumentPath(kind Kind, a matrix.Assignment) string {
	return path.Join(string(kind), safeName(a.Release), safeName(a.Assignee)+".docx")
}

var unsafeChars = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "..", "_")

func safeName(s string) string {
	return unsafeChars.Replace(s)
}

func addEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}

	_, err = f.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
