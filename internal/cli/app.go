package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/config"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/essence"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/names"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/snapshot"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/store"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/tfs"
)

// Errors for missing prerequisites.
var (
	ErrMissingPAT       = errors.New("TIMEREPORT_PAT is not set")
	ErrMissingAPIKey    = errors.New("OPENAI_API_KEY is not set")
	ErrMissingTracker   = errors.New("tracker_url is not configured")
	ErrPeriodRequired   = errors.New("--from and --to are required")
	ErrConflictingFlags = errors.New("conflicting flags")
)

// Deps replaces collaborators that reach outside the process. Zero values
// select the real implementations built from the configuration.
type Deps struct {
	Source     snapshot.TaskSource
	Completer  essence.Completer
	HTTPClient *http.Client
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

type app struct {
	cfg  config.Config
	deps Deps
	log  *logrus.Entry
}

func newApp(cfg config.Config, deps Deps, log *logrus.Entry) *app {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &app{cfg: cfg, deps: deps, log: log}
}

func (a *app) commands() []*Command {
	return []*Command{
		UpdateCmd(a),
		DraftsCmd(a),
		DraftCmd(a),
		DeleteCmd(a),
		ApproveCmd(a),
		SnapshotsCmd(a),
		SnapshotCmd(a),
		CacheFillCmd(a),
		PrintConfigCmd(&a.cfg),
	}
}

func (a *app) manager() (*snapshot.Manager, error) {
	source := a.deps.Source

	if source == nil && a.cfg.TrackerURL != "" {
		handlers, err := tfs.HandlersFor(a.cfg.Projects)
		if err != nil {
			return nil, err
		}

		client := tfs.NewClient(a.cfg.TrackerURL, a.deps.HTTPClient)
		source = tfs.NewSource(client, handlers, a.log.WithField("component", "tfs"))
	}

	files := store.NewFiles(a.cfg.StorageDir, store.WithClock(a.deps.Now))

	return snapshot.NewManager(files, source, a.log.WithField("component", "snapshot")), nil
}

// buildMatrix normalizes names and applies the predefined spend, warning
// about data the operator should fix.
func (a *app) buildMatrix(o *IO, tasks []task.Task) (*matrix.Matrix, *matrix.SpendModel, error) {
	ref, err := names.Load(a.cfg.NamesReference)
	if err != nil {
		return nil, nil, err
	}

	spend, err := matrix.LoadSpend(a.cfg.PredefinedSpend)
	if err != nil {
		return nil, nil, err
	}

	m, err := matrix.New(tasks, names.NewNormalizer(ref))
	if err != nil {
		return nil, nil, err
	}

	for _, person := range m.Assignees() {
		known, err := m.Known(person)
		if err != nil {
			return nil, nil, err
		}

		if !known {
			o.Warn(fmt.Sprintf("%q is not in the names reference", person), "add it to "+displayPath(a.cfg.NamesReference))
		}
	}

	for _, pair := range matrix.Unmatched(spend, m.Releases()) {
		o.Warn("predefined spend "+pair+" matches no release in this period", "its share goes back to the person's task time")
	}

	return m, matrix.NewSpendModel(spend, m.Releases()), nil
}

// essenceCache opens the summary store. The caller must call the returned
// close function.
func (a *app) essenceCache(ctx context.Context) (*essence.Cache, func() error, error) {
	db, err := essence.OpenSQLite(ctx, a.cfg.EssenceDB)
	if err != nil {
		return nil, nil, err
	}

	completer := a.deps.Completer
	if completer == nil {
		if a.cfg.Secrets.OpenAIAPIKey == "" {
			completer = missingKey{}
		} else {
			completer = essence.NewOpenAI(a.cfg.Secrets.OpenAIAPIKey, a.cfg.AI.BaseURL, a.cfg.AI.Model, a.cfg.AI.Temperature)
		}
	}

	var limiterOpts []essence.LimiterOption
	if a.deps.Sleep != nil {
		limiterOpts = append(limiterOpts, essence.WithSleep(a.deps.Sleep))
	}

	log := a.log.WithField("component", "essence")
	gen := essence.NewGenerator(
		completer,
		essence.NewLimiter(a.cfg.AI.MaxRequestsPerMinute, limiterOpts...),
		essence.WithLogger(log),
	)

	return essence.NewCache(db, gen, log), db.Close, nil
}

type missingKey struct{}

func (missingKey) Complete(context.Context, string, string) (string, error) {
	return "", ErrMissingAPIKey
}

func (a *app) outputPath(out, fallback string) string {
	if out == "" {
		out = fallback
	}

	if !filepath.IsAbs(out) {
		out = filepath.Join(a.cfg.EffectiveCwd, out)
	}

	return out
}

func writeOutput(path string, data []byte) error {
	err := atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "a names reference file (names_reference in config)"
	}

	return p
}
