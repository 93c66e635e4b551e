package report_test

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/names"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/report"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

const (
	from = "01-04-2023"
	to   = "30-04-2023"
)

func sampleMatrix(t *testing.T) (*matrix.Matrix, *matrix.SpendModel) {
	t.Helper()

	tasks := []task.Task{
		task.New("A", []string{"Petr"}, "FTW_1", "hA"),
		task.New("B", []string{"Foma", "Petr"}, "OMG_1", "hB"),
	}

	m, err := matrix.New(tasks, names.NewNormalizer(names.Reference{"Petr": "Petr", "Foma": "Foma"}))
	require.NoError(t, err)

	return m, matrix.NewSpendModel(nil, m.Releases())
}

// sheetTable reads the report sheet into person -> release -> raw value.
func sheetTable(t *testing.T, data []byte) map[string]map[string]string {
	t.Helper()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)

	defer f.Close()

	sheet := from + " - " + to
	assert.Equal(t, []string{sheet, "How to use"}, f.GetSheetList())

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	header := rows[0]
	out := map[string]map[string]string{}

	for _, row := range rows[1:] {
		cells := map[string]string{}
		for i := 1; i < len(row) && i < len(header); i++ {
			cells[header[i]] = row[i]
		}

		out[row[0]] = cells
	}

	return out
}

func Test_Spreadsheet_Writes_Percentages_Per_Person(t *testing.T) {
	t.Parallel()

	m, spend := sampleMatrix(t)

	data, err := report.Spreadsheet(m, spend, from, to)
	require.NoError(t, err)

	got := sheetTable(t, data)

	assert.Equal(t, map[string]string{"FTW_1": "0.5", "OMG_1": "0.5", "DEFAULT": "0"}, got["Petr"])
	assert.Equal(t, map[string]string{"FTW_1": "0", "OMG_1": "1", "DEFAULT": "0"}, got["Foma"])
}

func Test_Spreadsheet_Highlights_Unknown_People(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{task.New("A", []string{"Stranger"}, "FTW_1", "hA")}

	m, err := matrix.New(tasks, names.NewNormalizer(nil))
	require.NoError(t, err)

	data, err := report.Spreadsheet(m, matrix.NewSpendModel(nil, m.Releases()), from, to)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)

	defer f.Close()

	sheet := from + " - " + to

	name, err := f.GetCellValue(sheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Stranger", name)

	styleID, err := f.GetCellStyle(sheet, "A2")
	require.NoError(t, err)

	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"FFFF7F"}, style.Fill.Color)
}

func writeTemplate(t *testing.T, path, body string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>` + body + `</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
	}

	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func documentXML(t *testing.T, data []byte) string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}

		rc, err := f.Open()
		require.NoError(t, err)

		defer rc.Close()

		b, err := io.ReadAll(rc)
		require.NoError(t, err)

		return string(b)
	}

	t.Fatal("document.xml missing")

	return ""
}

func Test_Documents_Fill_Template_For_Product(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	docs := report.NewDocuments(dir)

	writeTemplate(t, filepath.Join(dir, "done", "FTW.docx"), "{assignee} did {tasks}")

	a := matrix.Assignment{
		Release:  "FTW_1",
		Assignee: "Petr",
		Tasks: []task.Task{
			task.New("Fix login", []string{"Petr"}, "FTW_1", "h").WithEssence("fix login", "fixed login"),
			task.New("Write docs", []string{"Petr"}, "FTW_1", "h"),
		},
	}

	data, err := docs.Render(report.KindDone, a, from, to)
	require.NoError(t, err)

	xml := documentXML(t, data)
	assert.Contains(t, xml, "Petr did fixed login;")
	assert.Contains(t, xml, "Write docs")
	assert.NotContains(t, xml, "{assignee}")
}

func Test_Documents_Report_Missing_Template(t *testing.T) {
	t.Parallel()

	docs := report.NewDocuments(t.TempDir())

	_, err := docs.Render(report.KindTodo, matrix.Assignment{Release: "OMG_2", Assignee: "Petr"}, from, to)
	require.ErrorIs(t, err, report.ErrTemplateMissing)
}

func Test_Placeholders_Use_Task_Dates_When_Known(t *testing.T) {
	t.Parallel()

	created := time.Date(2023, 4, 3, 10, 0, 0, 0, time.UTC)
	closed := time.Date(2023, 4, 20, 10, 0, 0, 0, time.UTC)

	withDates := matrix.Assignment{
		Release:  "FTW_1",
		Assignee: "Petr",
		Tasks:    []task.Task{task.New("A", []string{"Petr"}, "FTW_1", "h", task.WithDates(created, closed))},
	}

	got := report.Placeholders(report.KindTodo, withDates, from, to)
	assert.Equal(t, "03.04.2023 - 20.04.2023", got["dates"])
	assert.Equal(t, "01-04-2023 - 30-04-2023", got["period"])
	assert.Equal(t, "A", got["tasks"])

	noDates := matrix.Assignment{Release: "FTW_1", Assignee: "Petr", Tasks: []task.Task{task.New("A", []string{"Petr"}, "FTW_1", "h")}}
	assert.Equal(t, "01.04.2023 - 30.04.2023", report.Placeholders(report.KindTodo, noDates, from, to)["dates"])
}

type stubDocs struct {
	calls []string
}

func (s *stubDocs) Render(kind report.Kind, a matrix.Assignment, _, _ string) ([]byte, error) {
	s.calls = append(s.calls, string(kind)+":"+a.Release+":"+a.Assignee)

	return []byte("doc"), nil
}

func Test_Bundle_Contains_Spreadsheet_And_Documents(t *testing.T) {
	t.Parallel()

	m, spend := sampleMatrix(t)
	docs := &stubDocs{}

	var buf bytes.Buffer

	require.NoError(t, report.Bundle(&buf, m, spend, docs, from, to))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var entries []string
	for _, f := range zr.File {
		entries = append(entries, f.Name)
	}

	assert.Equal(t, report.SpreadsheetName, entries[0])
	assert.ElementsMatch(t, []string{
		report.SpreadsheetName,
		"todo/FTW_1/Petr.docx", "done/FTW_1/Petr.docx",
		"todo/OMG_1/Petr.docx", "done/OMG_1/Petr.docx",
		"todo/OMG_1/Foma.docx", "done/OMG_1/Foma.docx",
	}, entries)
	assert.Len(t, docs.calls, 6)
}

func Test_DocumentPath_Replaces_Path_Separators(t *testing.T) {
	t.Parallel()

	got := report.DocumentPath(report.KindTodo, matrix.Assignment{Release: "FTW/1", Assignee: "../Petr"})
	assert.False(t, strings.Contains(got, ".."))
	assert.Equal(t, "todo/FTW_1/__Petr.docx", got)
}
