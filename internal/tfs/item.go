package tfs

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field reference names.
const (
	FieldTitle         = "System.Title"
	FieldAssignedTo    = "System.AssignedTo"
	FieldTags          = "System.Tags"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldDescription   = "System.Description"
	FieldCreatedDate   = "System.CreatedDate"
	FieldClosedDate    = "Microsoft.VSTS.Common.ClosedDate"
)

const relParent = "System.LinkTypes.Hierarchy-Reverse"

// Item is a work item as returned with $expand=all.
type Item struct {
	ID        int            `json:"id"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
	Links     struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

// Relation links two work items.
type Relation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// Field returns a field as text. Identity fields yield their display form.
func (w Item) Field(name string) string {
	switch v := w.Fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if s, ok := v["displayName"].(string); ok {
			return s
		}

		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Time parses a date field; unset or malformed values yield the zero time.
func (w Item) Time(name string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, w.Field(name))
	if err != nil {
		return time.Time{}
	}

	return t
}

// Link returns the browser URL of the item.
func (w Item) Link() string {
	return w.Links.HTML.Href
}

// ParentURL returns the API URL of the parent item, if any.
func (w Item) ParentURL() (string, bool) {
	for _, r := range w.Relations {
		if r.Rel == relParent {
			return r.URL, true
		}
	}

	return "", false
}

// ParentID returns the id of the parent item, if any.
func (w Item) ParentID() (int, bool) {
	u, ok := w.ParentURL()
	if !ok {
		return 0, false
	}

	id, err := strconv.Atoi(path.Base(u))
	if err != nil {
		return 0, false
	}

	return id, true
}

var tagAssignee = regexp.MustCompile(`[@#]([А-Яа-яё]+[_ ][А-Яа-яё]+)`)

// Assignees returns the person the item is assigned to and the person
// named by an @Name_Surname or #Name_Surname tag, if present.
func Assignees(w Item) []string {
	var out []string

	if a := w.Field(FieldAssignedTo); a != "" {
		if i := strings.Index(a, " <"); i >= 0 {
			a = a[:i]
		}

		out = append(out, a)
	}

	if m := tagAssignee.FindStringSubmatch(w.Field(FieldTags)); m != nil {
		out = append(out, strings.ReplaceAll(m[1], "_", " "))
	}

	return out
}
