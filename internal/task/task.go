// Package task defines the work item value shared by every stage of report
// generation: retrieval, snapshots, enrichment, allocation and rendering.
package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrBroken reports tasks that cannot be allocated: no title or no assignees.
var ErrBroken = errors.New("broken task")

// Task is an immutable record of one completed work item.
//
// Assignees are always deduplicated and sorted. Release is empty for work
// that belongs to the default bucket.
type Task struct {
	Title     string
	Assignees []string
	Release   string
	Link      string

	// Cache identity and enrichment inputs; empty when the source has none.
	Project     string
	TID         string
	ParentTitle string
	Body        string

	// Enrichment outputs.
	Essence          string
	EssenceCompleted string

	Created time.Time
	Closed  time.Time
}

// Key identifies a task across retrievals.
type Key struct {
	Project string
	TID     string
}

func (k Key) String() string {
	return k.Project + "/" + k.TID
}

// Option sets an optional field during construction.
type Option func(*Task)

// WithIdentity sets the project and tracker id.
func WithIdentity(project, tid string) Option {
	return func(t *Task) {
		t.Project = project
		t.TID = tid
	}
}

// WithContext sets the parent title and body used for summaries.
func WithContext(parentTitle, body string) Option {
	return func(t *Task) {
		t.ParentTitle = parentTitle
		t.Body = body
	}
}

// WithDates sets creation and completion timestamps.
func WithDates(created, closed time.Time) Option {
	return func(t *Task) {
		t.Created = created
		t.Closed = closed
	}
}

// New builds a task. Assignees are copied, deduplicated and sorted.
func New(title string, assignees []string, release, link string, opts ...Option) Task {
	t := Task{
		Title:     title,
		Assignees: normalizeAssignees(assignees),
		Release:   release,
		Link:      link,
	}

	for _, opt := range opts {
		opt(&t)
	}

	return t
}

func normalizeAssignees(in []string) []string {
	out := make([]string, 0, len(in))

	for _, a := range in {
		if a == "" {
			continue
		}

		out = append(out, a)
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// Key returns the cache identity of the task.
func (t Task) Key() Key {
	return Key{Project: t.Project, TID: t.TID}
}

// Broken reports whether the task has no title or no assignees.
func (t Task) Broken() bool {
	return strings.TrimSpace(t.Title) == "" || len(t.Assignees) == 0
}

// WithEssence returns a copy carrying both summaries.
func (t Task) WithEssence(todo, done string) Task {
	t.Essence = todo
	t.EssenceCompleted = done

	return t
}

// Validate returns an error wrapping ErrBroken that names every broken task.
func Validate(tasks []Task) error {
	var lines []string

	for _, t := range tasks {
		if !t.Broken() {
			continue
		}

		lines = append(lines, fmt.Sprintf("%q (%s)", t.Title, t.Link))
	}

	if len(lines) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d without title or assignees: %s", ErrBroken, len(lines), strings.Join(lines, ", "))
}
