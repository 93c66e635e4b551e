package cli_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/cli"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

type fakeSource struct {
	tasks []task.Task
	calls atomic.Int32
}

func (f *fakeSource) Tasks(_ context.Context, _, _, _ string) ([]task.Task, error) {
	f.calls.Add(1)

	return f.tasks, nil
}

type fakeCompleter struct {
	calls atomic.Int32
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.calls.Add(1)

	return "summary of " + user, nil
}

func sampleTasks() []task.Task {
	return []task.Task{
		task.New("A", []string{"Petr"}, "FTW_1", "https://tracker/1",
			task.WithIdentity("HQ/ContentAI", "1"), task.WithContext("Epic", "details")),
		task.New("B", []string{"Foma", "Petr"}, "OMG_1", "https://tracker/2",
			task.WithIdentity("HQ/ContentAI", "2"), task.WithContext("Epic", "")),
	}
}

func newTestCLI(t *testing.T) (*cli.CLI, *fakeSource, *fakeCompleter) {
	t.Helper()

	c := cli.NewCLI(t)
	src := &fakeSource{tasks: sampleTasks()}
	comp := &fakeCompleter{}

	c.Deps = cli.Deps{
		Source:    src,
		Completer: comp,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}

	c.WriteFile(".timereport.json", `{
		// project config
		"names_reference": "names.json",
	}`)
	c.WriteFile("names.json", `{"Petr": "Petr", "Foma": "Foma"}`)

	return c, src, comp
}

func docxTemplate(t *testing.T, body string) string {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	_, err = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>`+body+`</w:t></w:r></w:p></w:body></w:document>`)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.String()
}

func Test_Update_Stores_Draft_And_Lists_It(t *testing.T) {
	t.Parallel()

	c, src, _ := newTestCLI(t)

	out := c.MustRun("update", "--from", "01.04.2023", "--to", "30/04/2023")
	assert.Equal(t, "Updated draft 01-04-2023 .. 30-04-2023 (2 tasks)", out)
	assert.Equal(t, int32(1), src.calls.Load())

	list := c.MustRun("drafts")
	cli.AssertContains(t, list, "01-04-2023\t30-04-2023\t")
}

func Test_Update_Twice_Keeps_One_Draft(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	c.MustRun("update", "-f", "01-04-2023", "-t", "30-04-2023")
	c.MustRun("update", "-f", "01-04-2023", "-t", "30-04-2023")

	assert.Len(t, strings.Split(c.MustRun("drafts"), "\n"), 1)
}

func Test_Update_Rejects_Bad_Input(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	cli.AssertContains(t, c.MustFail("update", "--from", "2023-04-01", "--to", "30-04-2023"), "invalid date")
	cli.AssertContains(t, c.MustFail("update", "--from", "30-04-2023", "--to", "01-04-2023"), "before it starts")
	cli.AssertContains(t, c.MustFail("update", "--from", "01-04-2023"), "--from and --to are required")
	cli.AssertContains(t, c.MustFail("update", "--next", "--from", "01-04-2023", "--to", "30-04-2023"), "conflicting flags")
	cli.AssertContains(t, c.MustFail("update", "--next"), "no snapshot")
}

func Test_Update_Requires_Tracker_Configuration(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("update", "--from", "01-04-2023", "--to", "30-04-2023"), "tracker_url is not configured")

	c.WriteFile(".timereport.json", `{"tracker_url": "https://tracker.example"}`)
	cli.AssertContains(t, c.MustFail("update", "--from", "01-04-2023", "--to", "30-04-2023"), "TIMEREPORT_PAT is not set")
}

func Test_Draft_Renders_Spreadsheet(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")
	out := c.MustRun("draft", "--from", "01-04-2023", "--to", "30-04-2023", "--out", "review.xlsx")
	cli.AssertContains(t, out, "review.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(c.ReadFile("review.xlsx")))
	require.NoError(t, err)

	defer f.Close()

	rows, err := f.GetRows("01-04-2023 - 30-04-2023", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"", "FTW_1", "OMG_1", "DEFAULT"}, rows[0])
}

func Test_Draft_Warns_About_Unknown_Names(t *testing.T) {
	t.Parallel()

	c, src, _ := newTestCLI(t)
	src.tasks = append(src.tasks, task.New("C", []string{"Stranger"}, "", "https://tracker/3"))

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")

	stdout, stderr, code := c.Run("draft", "--from", "01-04-2023", "--to", "30-04-2023")
	assert.Equal(t, 0, code)
	cli.AssertContains(t, stdout, "time_report_01-04-2023_30-04-2023.xlsx")
	cli.AssertContains(t, stderr, `"Stranger" is not in the names reference`)
}

func Test_Draft_Of_Missing_Period_Fails(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	cli.AssertContains(t, c.MustFail("draft", "--from", "01-04-2023", "--to", "30-04-2023"), "not found")
	cli.AssertContains(t, c.MustFail("delete", "--from", "01-04-2023", "--to", "30-04-2023"), "not found")
}

func Test_Approve_Moves_Draft_To_Snapshots(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")
	cli.AssertContains(t, c.MustRun("approve", "--from", "01-04-2023", "--to", "30-04-2023"), "Approved 01-04-2023 .. 30-04-2023 @")

	assert.Empty(t, c.MustRun("drafts"))
	cli.AssertContains(t, c.MustRun("snapshots"), "01-04-2023\t30-04-2023\t")
}

func Test_Snapshot_Builds_Bundle_And_Caches_Summaries(t *testing.T) {
	t.Parallel()

	c, _, comp := newTestCLI(t)

	for _, kind := range []string{"todo", "done"} {
		for _, product := range []string{"FTW", "OMG"} {
			c.WriteFile(filepath.Join("templates", kind, product+".docx"), docxTemplate(t, "{assignee}: {tasks}"))
		}
	}

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")
	c.MustRun("approve", "--from", "01-04-2023", "--to", "30-04-2023")

	out := c.MustRun("snapshot", "--from", "01-04-2023", "--to", "30-04-2023", "-o", "final.zip")
	cli.AssertContains(t, out, "final.zip")
	assert.Equal(t, int32(4), comp.calls.Load())

	data := c.ReadFile("final.zip")
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	assert.ElementsMatch(t, []string{
		"time_report.xlsx",
		"todo/FTW_1/Petr.docx", "done/FTW_1/Petr.docx",
		"todo/OMG_1/Petr.docx", "done/OMG_1/Petr.docx",
		"todo/OMG_1/Foma.docx", "done/OMG_1/Foma.docx",
	}, names)

	// Summaries are stored: a second run asks the AI nothing.
	c.MustRun("snapshot", "--from", "01-04-2023", "--to", "30-04-2023", "-o", "again.zip")
	assert.Equal(t, int32(4), comp.calls.Load())

	assert.Equal(t, "2 tasks: 2 stored, 0 generated, 0 from title only", c.MustRun("cache-fill", "--from", "01-04-2023", "--to", "30-04-2023"))
}

func Test_Snapshot_Without_Templates_Fails(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")
	c.MustRun("approve", "--from", "01-04-2023", "--to", "30-04-2023")

	cli.AssertContains(t, c.MustFail("snapshot", "--from", "01-04-2023", "--to", "30-04-2023"), "document template missing")
}

func Test_CacheFill_Without_API_Key_Fails_For_New_Tasks(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)
	c.Deps.Completer = nil

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")

	cli.AssertContains(t, c.MustFail("cache-fill", "--draft", "--from", "01-04-2023", "--to", "30-04-2023"), "OPENAI_API_KEY is not set")
}

func Test_Next_Starts_After_Latest_Snapshot(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)
	c.Deps.Now = func() time.Time { return time.Date(2023, 5, 16, 9, 0, 0, 0, time.UTC) }

	c.MustRun("update", "--from", "01-04-2023", "--to", "30-04-2023")
	c.MustRun("approve", "--from", "01-04-2023", "--to", "30-04-2023")

	assert.Equal(t, "Updated draft 01-05-2023 .. 15-05-2023 (2 tasks)", c.MustRun("update", "--next"))
}

func Test_PrintConfig_Shows_Sources_And_Hides_Secrets(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCLI(t)
	c.Env["TIMEREPORT_PAT"] = "very-secret"

	out := c.MustRun("print-config")
	cli.AssertContains(t, out, "TIMEREPORT_PAT=(set)")
	cli.AssertContains(t, out, "OPENAI_API_KEY=(unset)")
	cli.AssertContains(t, out, "project_config="+filepath.Join(c.Dir, ".timereport.json"))
	cli.AssertNotContains(t, out, "very-secret")
}

func Test_Unknown_Command_And_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("frobnicate"), "unknown command: frobnicate")
	cli.AssertContains(t, c.MustFail("--bogus", "drafts"), "unknown flag")

	out := c.MustRun("--help")
	cli.AssertContains(t, out, "snapshot")
	cli.AssertContains(t, out, "cache-fill")

	help := c.MustRun("draft", "--help")
	cli.AssertContains(t, help, "Usage: timereport draft")
}
