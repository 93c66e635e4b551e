// Package essence enriches tasks with short AI-written summaries and keeps
// every summary it ever produced so it is paid for once.
package essence

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// Store persists summaries by task key.
type Store interface {
	// Lookup splits tasks into those with stored summaries (returned
	// enriched) and those without.
	Lookup(ctx context.Context, tasks []task.Task) (known, unknown []task.Task, err error)

	// Memorize stores the summaries of t, replacing previous ones.
	Memorize(ctx context.Context, t task.Task) error
}

// Enricher fills in both summaries of a task.
type Enricher interface {
	Generate(ctx context.Context, t task.Task) (task.Task, error)
}

// Stats counts where the summaries of a Filter call came from.
type Stats struct {
	Memo      int
	Stored    int
	TitleOnly int
	Generated int
}

// Cache serves summaries from memory, then the store, then the enricher.
type Cache struct {
	store    Store
	enricher Enricher
	memo     *gocache.Cache
	log      *logrus.Entry
	stats    Stats
}

// NewCache returns a cache over store that asks enricher for misses.
// log may be nil.
func NewCache(store Store, enricher Enricher, log *logrus.Entry) *Cache {
	if log == nil {
		log = discardLogger()
	}

	return &Cache{
		store:    store,
		enricher: enricher,
		memo:     gocache.New(gocache.NoExpiration, 0),
		log:      log,
	}
}

// Stats returns the counters accumulated over all Filter calls.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Filter returns tasks enriched with summaries, in input order. Tasks without
// a parent title and body are summarized by their own title. Each newly
// generated summary is stored before the next task is processed, so an
// interrupted run keeps its progress.
func (c *Cache) Filter(ctx context.Context, tasks []task.Task) ([]task.Task, error) {
	out := make([]task.Task, len(tasks))

	var pending []int

	for i, t := range tasks {
		if s, ok := c.recall(t); ok {
			out[i] = t.WithEssence(s.todo, s.done)
			c.stats.Memo++

			continue
		}

		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return out, nil
	}

	lookup := make([]task.Task, 0, len(pending))
	for _, i := range pending {
		lookup = append(lookup, tasks[i])
	}

	known, _, err := c.store.Lookup(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("lookup summaries: %w", err)
	}

	stored := make(map[task.Key]task.Task, len(known))
	for _, t := range known {
		stored[t.Key()] = t
	}

	for n, i := range pending {
		t := tasks[i]

		if hit, ok := stored[t.Key()]; ok {
			out[i] = t.WithEssence(hit.Essence, hit.EssenceCompleted)
			c.remember(hit)
			c.stats.Stored++

			continue
		}

		// Same key generated earlier in this call.
		if s, ok := c.recall(t); ok {
			out[i] = t.WithEssence(s.todo, s.done)
			c.stats.Memo++

			continue
		}

		enriched, err := c.enrich(ctx, t)
		if err != nil {
			return nil, err
		}

		err = c.store.Memorize(ctx, enriched)
		if err != nil {
			return nil, fmt.Errorf("store summary of %s: %w", t.Key(), err)
		}

		c.remember(enriched)
		out[i] = enriched

		c.log.WithFields(logrus.Fields{
			"task":     t.Key().String(),
			"progress": fmt.Sprintf("%d/%d", n+1, len(pending)),
		}).Debug("summary ready")
	}

	return out, nil
}

type summary struct {
	todo string
	done string
}

func (c *Cache) recall(t task.Task) (summary, bool) {
	v, ok := c.memo.Get(t.Key().String())
	if !ok {
		return summary{}, false
	}

	return v.(summary), true
}

func (c *Cache) remember(t task.Task) {
	c.memo.Set(t.Key().String(), summary{todo: t.Essence, done: t.EssenceCompleted}, gocache.NoExpiration)
}

func (c *Cache) enrich(ctx context.Context, t task.Task) (task.Task, error) {
	if t.ParentTitle == "" && t.Body == "" {
		c.stats.TitleOnly++

		return t.WithEssence(t.Title, t.Title), nil
	}

	enriched, err := c.enricher.Generate(ctx, t)
	if err != nil {
		return task.Task{}, err
	}

	c.stats.Generated++

	return enriched, nil
}
