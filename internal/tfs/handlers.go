package tfs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownProject reports a project family without a handler.
var ErrUnknownProject = errors.New("unknown project")

// ErrParentCycle reports a parent chain that leads back to one of its items.
var ErrParentCycle = errors.New("parent cycle")

const excludeTag = "EXCLUDE_FROM_TIME_REPORTS"

// Query is a WIQL query bound to a tracker project.
type Query struct {
	Project string
	WIQL    string
}

// Parents resolves the parent of a work item.
type Parents interface {
	Parent(ctx context.Context, w Item) (Item, bool, error)
}

// Handler knows how one project family is queried and how releases are
// derived from its items.
type Handler interface {
	Name() string
	Queries(from, to string) []Query
	Release(ctx context.Context, w Item, parents Parents) (string, error)
}

// HandlersFor returns handlers for the named project families.
func HandlersFor(names []string) ([]Handler, error) {
	out := make([]Handler, 0, len(names))

	for _, n := range names {
		switch n {
		case "cai":
			out = append(out, Cai{})
		case "is":
			out = append(out, IS{})
		case "lingvo":
			out = append(out, Lingvo{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProject, n)
		}
	}

	return out, nil
}

// closedWithin matches items closed in [from, to], honoring the manual
// closed date override.
func closedWithin(from, to string) string {
	return fmt.Sprintf(`(
        ([Closed Date] >= '%[1]s' AND [Closed Date] <= '%[2]s' AND [Closed Date Override] = '')
        OR
        ([Closed Date Override] >= '%[1]s' AND [Closed Date Override] <= '%[2]s')
    )`, from, to)
}

func selectWhere(conditions ...string) string {
	conditions = append(conditions, fmt.Sprintf("[System.Tags] NOT CONTAINS '%s'", excludeTag))

	return "SELECT [System.AssignedTo], [System.Tags]\nFROM workitems\nWHERE\n    " +
		strings.Join(conditions, "\n    AND ") +
		"\nORDER BY [System.AssignedTo]"
}

// Cai covers the ContentAI products. Releases are tags like FR_12.8.0 on the
// item or the closest ancestor carrying one.
type Cai struct{}

const caiProject = "HQ/ContentAI"

var caiAreas = []string{`ContentAI\Документация`, `ContentAI\Design`}

func (Cai) Name() string { return "cai" }

func (Cai) Queries(from, to string) []Query {
	qs := []Query{{
		Project: caiProject,
		WIQL: selectWhere(
			"[System.State] = 'Done'",
			"[System.WorkItemType] = 'Task'",
			closedWithin(from, to),
		),
	}}

	for _, area := range caiAreas {
		qs = append(qs, Query{
			Project: caiProject,
			WIQL: selectWhere(
				"[System.State] = 'Done'",
				"[System.WorkItemType] = 'Product Backlog Item'",
				fmt.Sprintf("[System.AreaPath] = '%s'", area),
				closedWithin(from, to),
			),
		})
	}

	return qs
}

var caiRelease = regexp.MustCompile(`[A-Z\d]+_\d+\.\d+\.\d+`)

func (Cai) Release(ctx context.Context, w Item, parents Parents) (string, error) {
	seen := map[int]struct{}{}

	for {
		if _, ok := seen[w.ID]; ok {
			return "", fmt.Errorf("%w: work item %d", ErrParentCycle, w.ID)
		}

		seen[w.ID] = struct{}{}

		if m := caiRelease.FindString(w.Field(FieldTags)); m != "" {
			return m, nil
		}

		parent, ok, err := parents.Parent(ctx, w)
		if err != nil {
			return "", err
		}

		if !ok {
			return "", nil
		}

		w = parent
	}
}

// IS covers the AIS product. Releases come from the area path.
type IS struct{}

var isArea = regexp.MustCompile(`AIS\\(\d+\.\d+)`)

func (IS) Name() string { return "is" }

func (IS) Queries(from, to string) []Query {
	return []Query{{
		Project: "NLC/AIS",
		WIQL: selectWhere(
			"[System.State] = 'Closed'",
			"([System.WorkItemType] = 'Bug' OR [System.WorkItemType] = 'Task')",
			closedWithin(from, to),
		),
	}}
}

func (IS) Release(_ context.Context, w Item, _ Parents) (string, error) {
	if m := isArea.FindStringSubmatch(w.Field(FieldAreaPath)); m != nil {
		return "IS_" + m[1], nil
	}

	return "", nil
}

// Lingvo covers the Lingvo products. Releases come from the iteration path:
// versioned products map to PRODUCT_x.y[.z], services to a bare family.
type Lingvo struct{}

var (
	lingvoVersioned = regexp.MustCompile(`(.+?)\\(.+\\)?(\d+\.\d+(\.\d+)?)`)
	lingvoRoot      = regexp.MustCompile(`(.+?)\\.*`)

	lingvoProducts = map[string]string{
		"Lingvo X6":             "LX6",
		"lingvo.mobile.iOS":     "LMI",
		"lingvo.mobile.android": "LMA",
		"lingvo.mac":            "LFM",
		"lingvo.live.ios":       "LLI",
		"lingvo.live.android":   "LLA",
	}
	lingvoServices = map[string]string{
		"lingvo.mobile.services": "LLB",
		"lingvo.live.services":   "LLB",
		"lingvo.live.web":        "LLWW",
	}
)

func (Lingvo) Name() string { return "lingvo" }

func (Lingvo) Queries(from, to string) []Query {
	closed := fmt.Sprintf("([Closed Date] >= '%s' AND [Closed Date] <= '%s')", from, to)
	types := "([System.WorkItemType] = 'Bug' OR [System.WorkItemType] = 'Feature')"

	return []Query{
		{
			Project: "Lingvo",
			WIQL: selectWhere(
				"[System.State] = 'Closed'",
				"[System.TeamProject] <> 'lingvo.inbox'",
				types,
				closed,
			),
		},
		{
			Project: "LingvoLive",
			WIQL:    selectWhere("[System.State] = 'Closed'", types, closed),
		},
	}
}

func (Lingvo) Release(_ context.Context, w Item, _ Parents) (string, error) {
	iteration := w.Field(FieldIterationPath)

	if m := lingvoVersioned.FindStringSubmatch(iteration); m != nil {
		if product, ok := lingvoProducts[m[1]]; ok {
			return product + "_" + m[3], nil
		}
	}

	if m := lingvoRoot.FindStringSubmatch(iteration); m != nil {
		if family, ok := lingvoServices[m[1]]; ok {
			return family, nil
		}
	}

	return "", nil
}
