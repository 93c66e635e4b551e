package matrix_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
)

func Test_SpendModel_Splits_Family_Evenly_Across_Releases(t *testing.T) {
	t.Parallel()

	releases := []string{"FTW_13.3.7", "FTW_14.0.0", "OMG_15.0.0"}
	m := matrix.NewSpendModel(matrix.Spend{"Fedor": {"FTW": 0.2, "DEFAULT": 0.3}}, releases)

	assert.InDelta(t, 0.5, m.Total("Fedor"), 1e-9)
	assert.InDelta(t, 0.1, m.Fraction("Fedor", "FTW_13.3.7"), 1e-9)
	assert.InDelta(t, 0.1, m.Fraction("Fedor", "FTW_14.0.0"), 1e-9)
	assert.Zero(t, m.Fraction("Fedor", "OMG_15.0.0"))
	assert.InDelta(t, 0.3, m.Fraction("Fedor", matrix.DefaultRelease), 1e-9)
}

func Test_SpendModel_Returns_Zero_For_Unknown_Entries(t *testing.T) {
	t.Parallel()

	m := matrix.NewSpendModel(matrix.Spend{"Fedor": {"FTW": 0.2}}, []string{"FTW_1"})

	assert.Zero(t, m.Total("Nobody"))
	assert.Zero(t, m.Fraction("Nobody", "FTW_1"))
	assert.Zero(t, m.Fraction("Fedor", "XYZ_1"))
}

func Test_SpendModel_Drops_Unmatched_Family_From_Total(t *testing.T) {
	t.Parallel()

	s := matrix.Spend{"Fedor": {"FTW": 0.2, "OMG": 0.1}}
	m := matrix.NewSpendModel(s, []string{"FTW_1"})

	assert.InDelta(t, 0.2, m.Total("Fedor"), 1e-9)
	assert.InDelta(t, 0.2, m.Fraction("Fedor", "FTW_1"), 1e-9)
	assert.Equal(t, []string{"Fedor/OMG"}, matrix.Unmatched(s, []string{"FTW_1"}))
}

func Test_SpendModel_Does_Not_Match_Family_Prefix_Without_Separator(t *testing.T) {
	t.Parallel()

	m := matrix.NewSpendModel(matrix.Spend{"Fedor": {"FT": 0.2}}, []string{"FTW_1"})

	assert.Zero(t, m.Fraction("Fedor", "FTW_1"))
}

func Test_Spend_Validate(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		spend   matrix.Spend
		wantErr bool
	}{
		{name: "empty", spend: matrix.Spend{}},
		{name: "below one", spend: matrix.Spend{"X": {"QWE": 0.5, "ASD": 0.2}}},
		{name: "overflow", spend: matrix.Spend{"X": {"QWE": 0.9, "ASD": 0.2}}, wantErr: true},
		{name: "exactly one", spend: matrix.Spend{"X": {"DEFAULT": 1}}, wantErr: true},
		{name: "negative", spend: matrix.Spend{"X": {"QWE": -0.1}}, wantErr: true},
		{name: "nan", spend: matrix.Spend{"X": {"QWE": math.NaN()}}, wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.spend.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, matrix.ErrInvalidSpend)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_LoadSpend_Validates_File_Content(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	good := filepath.Join(dir, "spend.yaml")
	require.NoError(t, os.WriteFile(good, []byte("Foma:\n  OMG: 0.1\n  DEFAULT: 0.3\n"), 0o600))

	s, err := matrix.LoadSpend(good)
	require.NoError(t, err)
	assert.Equal(t, matrix.Spend{"Foma": {"OMG": 0.1, "DEFAULT": 0.3}}, s)

	bad := filepath.Join(dir, "spend.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"X": {"QWE": "lots"}}`), 0o600))

	_, err = matrix.LoadSpend(bad)
	require.ErrorIs(t, err, matrix.ErrInvalidSpend)

	over := filepath.Join(dir, "over.json")
	require.NoError(t, os.WriteFile(over, []byte(`{"X": {"QWE": 0.9, "ASD": 0.2}}`), 0o600))

	_, err = matrix.LoadSpend(over)
	require.ErrorIs(t, err, matrix.ErrInvalidSpend)

	nan := filepath.Join(dir, "nan.yaml")
	require.NoError(t, os.WriteFile(nan, []byte("Foma:\n  FTW: .nan\n"), 0o600))

	_, err = matrix.LoadSpend(nan)
	require.ErrorIs(t, err, matrix.ErrInvalidSpend)
}

func Test_Family_Returns_Prefix_Before_Underscore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FTW", matrix.Family("FTW_13.3.7"))
	assert.Equal(t, "IS", matrix.Family("IS_1.2"))
	assert.Equal(t, "DEFAULT", matrix.Family(""))
	assert.Equal(t, "DEFAULT", matrix.Family("DEFAULT"))
	assert.Equal(t, "NOSEP", matrix.Family("NOSEP"))
}
