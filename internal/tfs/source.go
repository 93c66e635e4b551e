package tfs

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/snapshot"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

const wiqlDateLayout = "2006-01-02"

// Source fetches tasks from every configured project family.
type Source struct {
	client   *Client
	handlers []Handler
	log      *logrus.Entry
}

var _ snapshot.TaskSource = (*Source)(nil)

// NewSource returns a source querying client with handlers. log may be nil.
func NewSource(client *Client, handlers []Handler, log *logrus.Entry) *Source {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	return &Source{client: client, handlers: handlers, log: log}
}

// Tasks implements snapshot.TaskSource. from and to are dd-mm-YYYY dates;
// credential is the personal access token.
func (s *Source) Tasks(ctx context.Context, credential, from, to string) ([]task.Task, error) {
	isoFrom, err := wiqlDate(from)
	if err != nil {
		return nil, err
	}

	isoTo, err := wiqlDate(to)
	if err != nil {
		return nil, err
	}

	client := s.client.WithPAT(credential)
	parents := newParentCache(client)

	var out []task.Task

	for _, h := range s.handlers {
		seen := map[string]bool{}

		for _, q := range h.Queries(isoFrom, isoTo) {
			ids, err := client.Query(ctx, q.Project, q.WIQL)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h.Name(), err)
			}

			items, err := client.Items(ctx, q.Project, ids)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h.Name(), err)
			}

			for _, w := range items {
				key := q.Project + "/" + strconv.Itoa(w.ID)
				if seen[key] {
					continue
				}

				seen[key] = true

				t, err := s.convert(ctx, h, q.Project, w, parents)
				if err != nil {
					return nil, fmt.Errorf("%s item %d: %w", h.Name(), w.ID, err)
				}

				out = append(out, t)
			}
		}

		s.log.WithFields(logrus.Fields{"handler": h.Name(), "items": len(seen)}).Debug("fetched work items")
	}

	return out, nil
}

func (s *Source) convert(ctx context.Context, h Handler, project string, w Item, parents *parentCache) (task.Task, error) {
	release, err := h.Release(ctx, w, parents)
	if err != nil {
		return task.Task{}, err
	}

	var parentTitle string

	parent, ok, err := parents.Parent(ctx, w)
	if err != nil {
		return task.Task{}, err
	}

	if ok {
		parentTitle = parent.Field(FieldTitle)
	}

	return task.New(
		w.Field(FieldTitle),
		Assignees(w),
		release,
		w.Link(),
		task.WithIdentity(project, strconv.Itoa(w.ID)),
		task.WithContext(parentTitle, PlainText(w.Field(FieldDescription))),
		task.WithDates(w.Time(FieldCreatedDate), w.Time(FieldClosedDate)),
	), nil
}

func wiqlDate(date string) (string, error) {
	t, err := time.Parse(snapshot.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: %q", snapshot.ErrInvalidDate, date)
	}

	return t.Format(wiqlDateLayout), nil
}

// parentCache fetches each parent once per Tasks call.
type parentCache struct {
	client *Client
	items  map[string]Item
}

func newParentCache(c *Client) *parentCache {
	return &parentCache{client: c, items: map[string]Item{}}
}

func (p *parentCache) Parent(ctx context.Context, w Item) (Item, bool, error) {
	u, ok := w.ParentURL()
	if !ok {
		return Item{}, false, nil
	}

	if item, ok := p.items[u]; ok {
		return item, true, nil
	}

	item, err := p.client.ItemAt(ctx, u)
	if err != nil {
		return Item{}, false, fmt.Errorf("fetch parent: %w", err)
	}

	p.items[u] = item

	return item, true, nil
}
