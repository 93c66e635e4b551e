package matrix_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/names"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

type cell struct {
	Value       string
	Fraction    float64
	Percent     bool
	Highlighted bool
	Comment     string
}

type recorder struct {
	cells map[[2]int]*cell
	calls []string
}

func newRecorder() *recorder {
	return &recorder{cells: map[[2]int]*cell{}}
}

func (r *recorder) at(col, row int) *cell {
	c, ok := r.cells[[2]int{col, row}]
	if !ok {
		c = &cell{}
		r.cells[[2]int{col, row}] = c
	}

	return c
}

func (r *recorder) WriteCell(col, row int, value string) error {
	r.calls = append(r.calls, fmt.Sprintf("cell %d,%d %s", col, row, value))
	r.at(col, row).Value = value

	return nil
}

func (r *recorder) WritePercentage(col, row int, fraction float64) error {
	r.calls = append(r.calls, fmt.Sprintf("pct %d,%d", col, row))
	c := r.at(col, row)
	c.Fraction = fraction
	c.Percent = true

	return nil
}

func (r *recorder) WriteHighlighted(col, row int, value string) error {
	r.calls = append(r.calls, fmt.Sprintf("hl %d,%d %s", col, row, value))
	c := r.at(col, row)
	c.Value = value
	c.Highlighted = true

	return nil
}

func (r *recorder) WriteComment(col, row int, text string) error {
	r.calls = append(r.calls, fmt.Sprintf("comment %d,%d", col, row))
	r.at(col, row).Comment = text

	return nil
}

// column returns name -> fraction for the column whose header is release.
func (r *recorder) column(t *testing.T, release string) map[string]float64 {
	t.Helper()

	col := -1

	for c := 1; ; c++ {
		h, ok := r.cells[[2]int{c, 0}]
		if !ok {
			break
		}

		if h.Value == release {
			col = c
		}
	}

	require.NotEqual(t, -1, col, "no column %q", release)

	out := map[string]float64{}

	for row := 1; ; row++ {
		name, ok := r.cells[[2]int{0, row}]
		if !ok {
			break
		}

		out[name.Value] = r.cells[[2]int{col, row}].Fraction
	}

	return out
}

func render(t *testing.T, tasks []task.Task, ref names.Reference, spend matrix.Spend) *recorder {
	t.Helper()

	m, err := matrix.New(tasks, names.NewNormalizer(ref))
	require.NoError(t, err)

	rec := newRecorder()
	require.NoError(t, matrix.Render(rec, m, matrix.NewSpendModel(spend, m.Releases())))

	return rec
}

func Test_Render_Splits_Time_By_Task_Count(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{
		task.New("A", []string{"Petr"}, "FTW_1", "hA"),
		task.New("B", []string{"Foma", "Petr"}, "OMG_1", "hB"),
	}

	rec := render(t, tasks, nil, nil)

	assert.Equal(t, map[string]float64{"Petr": 0.5, "Foma": 0}, rec.column(t, "FTW_1"))
	assert.Equal(t, map[string]float64{"Petr": 0.5, "Foma": 1}, rec.column(t, "OMG_1"))
	assert.Equal(t, map[string]float64{"Petr": 0, "Foma": 0}, rec.column(t, "DEFAULT"))
}

func Test_Render_Adds_Predefined_Spend_On_Top_Of_Tasks(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{
		task.New("A", []string{"Petr"}, "FTW_13.3.7", "hA"),
		task.New("B", []string{"Foma", "Petr"}, "OMG_13.3.8", "hB"),
		task.New("C", []string{"P"}, "FTW_14.0.0", "hC"),
		task.New("D", []string{"P"}, "", "hD"),
	}
	ref := names.Reference{"P": "Petr", "F": "Foma"}
	spend := matrix.Spend{"Foma": {"OMG": 0.1, "FTW": 0.2, "DEFAULT": 0.3}}

	rec := render(t, tasks, ref, spend)

	want := map[string]map[string]float64{
		"FTW_13.3.7": {"Petr": 0.25, "Foma": 0.1},
		"FTW_14.0.0": {"Petr": 0.25, "Foma": 0.1},
		"OMG_13.3.8": {"Petr": 0.25, "Foma": 0.5},
		"DEFAULT":    {"Petr": 0.25, "Foma": 0.3},
	}

	for release, col := range want {
		got := rec.column(t, release)
		for person, p := range col {
			assert.InDelta(t, p, got[person], 1e-7, "%s/%s", release, person)
		}
	}
}

func Test_Render_Writes_Header_Then_Rows_In_Order(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{task.New("A", []string{"Petr"}, "FTW_1", "hA")}

	rec := render(t, tasks, names.Reference{"p": "Petr"}, nil)

	want := []string{
		"cell 0,0 ",
		"cell 1,0 FTW_1",
		"cell 2,0 DEFAULT",
		"cell 0,1 Petr",
		"pct 1,1",
		"comment 1,1",
		"pct 2,1",
	}

	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Fatalf("traversal mismatch (-want +got):\n%s", diff)
	}
}

func Test_Render_Highlights_Unknown_And_Idle_People(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{task.New("A", []string{"Petr"}, "FTW_1", "hA")}

	rec := render(t, tasks, names.Reference{"x": "Ann"}, nil)

	petr := rec.cells[[2]int{0, 1}]
	assert.Equal(t, "Petr", petr.Value)
	assert.True(t, petr.Highlighted)
	assert.Equal(t, matrix.MsgUnknownName, petr.Comment)

	ann := rec.cells[[2]int{0, 2}]
	assert.Equal(t, "Ann", ann.Value)
	assert.True(t, ann.Highlighted)
	assert.Equal(t, matrix.MsgNoTasks, ann.Comment)
}

func Test_RowNote_Joins_Both_Messages(t *testing.T) {
	t.Parallel()

	note, flagged := matrix.RowNote(0, false)
	assert.True(t, flagged)
	assert.Equal(t, matrix.MsgNoTasks+"\n\n"+matrix.MsgUnknownName, note)

	note, flagged = matrix.RowNote(3, true)
	assert.False(t, flagged)
	assert.Empty(t, note)
}

func Test_CellComment(t *testing.T) {
	t.Parallel()

	a := task.New("A", []string{"P"}, "", "hA")
	b := task.New("B", []string{"P"}, "", "hB")

	for _, tt := range []struct {
		name       string
		predefined float64
		tasks      []task.Task
		want       string
	}{
		{name: "empty", want: ""},
		{name: "tasks only", tasks: []task.Task{a, b}, want: "A: hA\nB: hB"},
		{name: "overhead only", predefined: 0.3, want: "30% of management overhead accounted for this release"},
		{
			name:       "overhead and tasks",
			predefined: 0.1,
			tasks:      []task.Task{b},
			want:       "10% of management overhead accounted for this release\n\nB: hB",
		},
		{name: "negligible overhead", predefined: 1e-6, tasks: []task.Task{a}, want: "A: hA"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matrix.CellComment(tt.predefined, tt.tasks))
		})
	}
}

func Test_Percentage_Renormalizes_Fixed_Shares_Without_Tasks(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{
		task.New("A", []string{"Petr"}, "FTW_1", "hA"),
		task.New("B", []string{"Petr"}, "OMG_1", "hB"),
	}
	spend := matrix.Spend{"Foma": {"OMG": 0.1, "FTW": 0.2, "DEFAULT": 0.3}}

	rec := render(t, tasks, names.Reference{"f": "Foma"}, spend)

	assert.InDelta(t, 1.0/3, rec.column(t, "FTW_1")["Foma"], 1e-6)
	assert.InDelta(t, 1.0/6, rec.column(t, "OMG_1")["Foma"], 1e-6)
	assert.InDelta(t, 0.5, rec.column(t, "DEFAULT")["Foma"], 1e-6)
}

func Test_Percentage_Is_Zero_Without_Tasks_Or_Spend(t *testing.T) {
	t.Parallel()

	assert.Zero(t, matrix.Percentage(0, 0, 0, 0))
	assert.Zero(t, matrix.Percentage(0, 0, 0.00001, 0.00005))
	assert.InDelta(t, 0.3333333, matrix.Percentage(1, 3, 0, 0), 1e-12)
}

func Test_Percentages_Sum_To_One_Per_Person(t *testing.T) {
	t.Parallel()

	people := []string{"Ann", "Petr", "Foma", "Fedor"}
	releases := []string{"", "FTW_1", "FTW_2", "OMG_1"}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "tasks")

		tasks := make([]task.Task, 0, n)
		for i := range n {
			assignees := rapid.SliceOfN(rapid.SampledFrom(people), 1, 3).Draw(t, "assignees")
			release := rapid.SampledFrom(releases).Draw(t, "release")
			tasks = append(tasks, task.New(fmt.Sprintf("T%d", i), assignees, release, "link"))
		}

		m, err := matrix.New(tasks, names.NewNormalizer(nil))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		spend := matrix.NewSpendModel(nil, m.Releases())

		for _, person := range m.Assignees() {
			total, _ := m.Total(person)
			sum := 0.0

			for _, rel := range append(m.Releases(), matrix.DefaultRelease) {
				count, _ := m.Count(person, rel)

				p := matrix.Percentage(count, total, spend.Fraction(person, rel), spend.Total(person))
				if p < 0 || p > 1 {
					t.Fatalf("%s/%s out of bounds: %v", person, rel, p)
				}

				sum += p
			}

			if math.Abs(sum-1) > 1e-6 {
				t.Fatalf("%s sums to %v", person, sum)
			}
		}
	})
}

func Test_Idle_Person_With_Spend_Sums_To_One(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		spend := matrix.Spend{"Foma": {
			"FTW":     rapid.Float64Range(0.01, 0.3).Draw(t, "ftw"),
			"OMG":     rapid.Float64Range(0.01, 0.3).Draw(t, "omg"),
			"DEFAULT": rapid.Float64Range(0.01, 0.3).Draw(t, "default"),
		}}

		releases := []string{"FTW_1", "FTW_2", "OMG_1"}
		model := matrix.NewSpendModel(spend, releases)

		sum := 0.0
		for _, rel := range append(releases, matrix.DefaultRelease) {
			sum += matrix.Percentage(0, 0, model.Fraction("Foma", rel), model.Total("Foma"))
		}

		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("sum = %v", sum)
		}
	})
}

func Test_Rows_Sum_To_One_When_A_Family_Has_No_Release(t *testing.T) {
	t.Parallel()

	tasks := []task.Task{task.New("A", []string{"Petr"}, "FTW_1", "link")}
	ref := names.Reference{"foma": "Foma", "petr": "Petr"}
	spend := matrix.Spend{
		"Foma": {"OMG": 0.1, "FTW": 0.2, "DEFAULT": 0.3},
		"Petr": {"OMG": 0.5},
	}

	rec := render(t, tasks, ref, spend)
	ftw := rec.column(t, "FTW_1")
	def := rec.column(t, matrix.DefaultRelease)

	assert.InDelta(t, 1, ftw["Foma"]+def["Foma"], 1e-6)
	assert.InDelta(t, 0.4, ftw["Foma"], 1e-6)
	assert.InDelta(t, 0.6, def["Foma"], 1e-6)

	assert.InDelta(t, 1, ftw["Petr"]+def["Petr"], 1e-6)
	assert.InDelta(t, 1, ftw["Petr"], 1e-6)
}
