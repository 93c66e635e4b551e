package essence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// ErrRateLimited reports that the completion service refused a request
// because of its rate limit.
var ErrRateLimited = errors.New("rate limited")

// Completer produces a chat completion for a system and a user message.
// Rate-limit refusals must wrap ErrRateLimited.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const (
	promptTodo = "На основе информации из системы отслеживания работы сформулируй задачу одним кратким предложением."
	promptDone = "Переформулируй задачу одним кратким предложением в прошедшем времени, как описание выполненной работы."

	userTodoFormat = `Заголовок задачи: "%s", заголовок подзадачи: "%s", тело подзадачи "%s".`
)

// Retry policy for rate-limited calls.
const (
	DefaultRetryDelay = 63 * time.Second
	DefaultMaxRetries = 3
)

// Generator asks a Completer for the two summaries of a task: what is to be
// done, and the same phrased as done work.
type Generator struct {
	completer  Completer
	limiter    *Limiter
	retryDelay time.Duration
	maxRetries uint64
	log        *logrus.Entry
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRetry overrides the delay and count of retries after rate limiting.
func WithRetry(delay time.Duration, maxRetries uint64) GeneratorOption {
	return func(g *Generator) {
		g.retryDelay = delay
		g.maxRetries = maxRetries
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *logrus.Entry) GeneratorOption {
	return func(g *Generator) { g.log = log }
}

// NewGenerator returns a generator pacing every call through limiter.
func NewGenerator(completer Completer, limiter *Limiter, opts ...GeneratorOption) *Generator {
	g := &Generator{
		completer:  completer,
		limiter:    limiter,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		log:        discardLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate returns t with both summaries filled in. An empty reply falls
// back to the title for the first summary and to the first summary for the
// second.
func (g *Generator) Generate(ctx context.Context, t task.Task) (task.Task, error) {
	todo, err := g.complete(ctx, t.Key(), promptTodo, fmt.Sprintf(userTodoFormat, t.ParentTitle, t.Title, t.Body))
	if err != nil {
		return task.Task{}, err
	}

	if todo == "" {
		g.log.WithField("task", t.Key().String()).Warn("empty summary, using the title")

		return t.WithEssence(t.Title, t.Title), nil
	}

	done, err := g.complete(ctx, t.Key(), promptDone, todo)
	if err != nil {
		return task.Task{}, err
	}

	if done == "" {
		g.log.WithField("task", t.Key().String()).Warn("empty completed summary, reusing the first one")

		done = todo
	}

	return t.WithEssence(todo, done), nil
}

func (g *Generator) complete(ctx context.Context, key task.Key, system, user string) (string, error) {
	var out string

	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewConstant(g.retryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := g.limiter.Wait(ctx)
		if err != nil {
			return err
		}

		text, err := g.completer.Complete(ctx, system, user)
		if errors.Is(err, ErrRateLimited) {
			g.log.WithField("task", key.String()).Warnf("rate limited, retrying in %s", g.retryDelay)

			return retry.RetryableError(err)
		}

		if err != nil {
			return err
		}

		out = strings.TrimSpace(text)

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return "", fmt.Errorf("summarize %s: gave up after %d retries: %w", key, g.maxRetries, err)
		}

		return "", fmt.Errorf("summarize %s: %w", key, err)
	}

	return out, nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return logrus.NewEntry(l)
}
