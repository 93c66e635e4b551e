package matrix

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/config"
)

// ErrInvalidSpend reports a predefined spend table that is malformed or
// allocates a whole person or more.
var ErrInvalidSpend = errors.New("invalid predefined spend")

// Spend maps an assignee to release families and the fixed share of their
// time spent on each. The DefaultRelease key addresses the default bucket.
type Spend map[string]map[string]float64

// LoadSpend reads and validates a spend table from a JSON, JSONC or YAML
// file. An empty path yields an empty table.
func LoadSpend(path string) (Spend, error) {
	if path == "" {
		return Spend{}, nil
	}

	var s Spend

	err := config.DecodeDataFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpend, err)
	}

	err = s.Validate()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks every fraction lies in [0, 1] and each person's total is
// strictly below 1.
func (s Spend) Validate() error {
	for _, person := range sortedKeys(s) {
		total := 0.0

		for _, family := range sortedKeys(s[person]) {
			p := s[person][family]
			if !(p >= 0 && p <= 1) {
				return fmt.Errorf("%w: %s/%s = %v is outside [0, 1]", ErrInvalidSpend, person, family, p)
			}

			total += p
		}

		if total >= 1 {
			return fmt.Errorf("%w: %s allocates %v, must be below 1", ErrInvalidSpend, person, total)
		}
	}

	return nil
}

type allocation struct {
	total    float64
	releases map[string]float64
}

// SpendModel holds the per-release overhead of each assignee for one set
// of releases.
type SpendModel struct {
	people map[string]allocation
}

// NewSpendModel expands family fractions onto releases. A family's share is
// split evenly across releases named "<family>_...". Families without a
// matching release are dropped and do not count toward the person's total,
// so every row still adds up to 1.
func NewSpendModel(s Spend, releases []string) *SpendModel {
	m := &SpendModel{people: make(map[string]allocation, len(s))}

	for person, families := range s {
		a := allocation{releases: make(map[string]float64, len(releases)+1)}

		for _, r := range releases {
			a.releases[r] = 0
		}

		for _, family := range sortedKeys(families) {
			p := families[family]

			if family == DefaultRelease {
				a.releases[DefaultRelease] = p
				a.total += p

				continue
			}

			matching := releasesOfFamily(releases, family)
			if len(matching) == 0 {
				continue
			}

			a.total += p

			for _, r := range matching {
				a.releases[r] += p / float64(len(matching))
			}
		}

		m.people[person] = a
	}

	return m
}

// Unmatched returns the families of s that match none of releases, as
// "person/family" pairs, sorted.
func Unmatched(s Spend, releases []string) []string {
	var out []string

	for person, families := range s {
		for family := range families {
			if family == DefaultRelease || len(releasesOfFamily(releases, family)) > 0 {
				continue
			}

			out = append(out, person+"/"+family)
		}
	}

	slices.Sort(out)

	return out
}

func releasesOfFamily(releases []string, family string) []string {
	var out []string

	for _, r := range releases {
		if strings.HasPrefix(r, family+"_") {
			out = append(out, r)
		}
	}

	return out
}

// Fraction returns person's fixed share of release, 0 when unknown.
func (m *SpendModel) Fraction(person, release string) float64 {
	return m.people[person].releases[release]
}

// Total returns person's overall fixed share, 0 when unknown.
func (m *SpendModel) Total(person string) float64 {
	return m.people[person].total
}

// Family returns the product prefix of a release: the text before the first
// underscore, or DefaultRelease for the default bucket.
func Family(release string) string {
	if release == "" || release == DefaultRelease {
		return DefaultRelease
	}

	family, _, _ := strings.Cut(release, "_")

	return family
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
