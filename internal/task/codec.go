package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// PayloadVersion is the envelope version written by Encode.
const PayloadVersion = 1

// ErrPayload reports a stored task list that cannot be decoded.
var ErrPayload = errors.New("invalid task payload")

type payload struct {
	Version int      `json:"version"`
	Tasks   []record `json:"tasks" validate:"dive"`
}

// record is the stored form of a Task. Field order here is the order on disk.
type record struct {
	Title            string   `json:"title" validate:"required"`
	Assignees        []string `json:"assignees" validate:"required,min=1,dive,required"`
	Release          string   `json:"release"`
	Link             string   `json:"link"`
	Project          string   `json:"project,omitempty"`
	TID              string   `json:"tid,omitempty"`
	ParentTitle      string   `json:"parent_title,omitempty"`
	Body             string   `json:"body,omitempty"`
	Essence          string   `json:"essence,omitempty"`
	EssenceCompleted string   `json:"essence_completed,omitempty"`
	Created          string   `json:"created,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Closed           string   `json:"closed,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode serializes tasks into a versioned JSON payload.
func Encode(tasks []Task) ([]byte, error) {
	p := payload{Version: PayloadVersion, Tasks: make([]record, 0, len(tasks))}

	for _, t := range tasks {
		p.Tasks = append(p.Tasks, toRecord(t))
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}

	return data, nil
}

// Decode parses a payload written by Encode and validates every record.
func Decode(data []byte) ([]Task, error) {
	var p payload

	err := json.Unmarshal(data, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayload, err)
	}

	if p.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrPayload, p.Version)
	}

	err = validate.Struct(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayload, err)
	}

	tasks := make([]Task, 0, len(p.Tasks))

	for i, r := range p.Tasks {
		t, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %w", ErrPayload, i, err)
		}

		tasks = append(tasks, t)
	}

	return tasks, nil
}

func toRecord(t Task) record {
	return record{
		Title:            t.Title,
		Assignees:        t.Assignees,
		Release:          t.Release,
		Link:             t.Link,
		Project:          t.Project,
		TID:              t.TID,
		ParentTitle:      t.ParentTitle,
		Body:             t.Body,
		Essence:          t.Essence,
		EssenceCompleted: t.EssenceCompleted,
		Created:          formatTime(t.Created),
		Closed:           formatTime(t.Closed),
	}
}

func fromRecord(r record) (Task, error) {
	created, err := parseTime(r.Created)
	if err != nil {
		return Task{}, fmt.Errorf("created: %w", err)
	}

	closed, err := parseTime(r.Closed)
	if err != nil {
		return Task{}, fmt.Errorf("closed: %w", err)
	}

	t := New(r.Title, r.Assignees, r.Release, r.Link,
		WithIdentity(r.Project, r.TID),
		WithContext(r.ParentTitle, r.Body),
		WithDates(created, closed),
	)

	return t.WithEssence(r.Essence, r.EssenceCompleted), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, s)
}
