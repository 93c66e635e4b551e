// Package snapshot manages the lifecycle of reporting periods: a mutable
// draft per period, refreshed from the tracker, and immutable snapshots
// approved from drafts.
package snapshot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// Storage namespaces.
const (
	NamespaceDrafts    = "drafts"
	NamespaceSnapshots = "snapshots"
)

// Lifecycle errors.
var (
	ErrNoSource         = errors.New("no task source configured")
	ErrNoSnapshot       = errors.New("no snapshot")
	ErrNothingToReport  = errors.New("nothing to report")
	ErrDraftDisappeared = errors.New("draft disappeared during approval")
)

// Storage keeps payloads by namespace and key and reports when each key was
// last written. Missing keys are reported as errors from Read and Delete.
type Storage interface {
	Write(namespace, key string, payload []byte) error
	List(namespace string) (map[string]time.Time, error)
	Read(namespace, key string) ([]byte, error)
	Delete(namespace, key string) error
}

// TaskSource retrieves the tasks completed within [from, to].
type TaskSource interface {
	Tasks(ctx context.Context, credential, from, to string) ([]task.Task, error)
}

// Draft describes a stored draft.
type Draft struct {
	DraftID

	MTime time.Time
}

// Manager implements draft and snapshot operations over a Storage.
type Manager struct {
	storage Storage
	source  TaskSource
	log     *logrus.Entry
}

// NewManager returns a manager. source may be nil when drafts are never
// updated; log may be nil.
func NewManager(storage Storage, source TaskSource, log *logrus.Entry) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	return &Manager{storage: storage, source: source, log: log}
}

// DraftUpdate fetches the tasks of the period and stores them as its draft,
// replacing any previous draft of the same period.
func (m *Manager) DraftUpdate(ctx context.Context, credential string, id DraftID) error {
	if m.source == nil {
		return ErrNoSource
	}

	tasks, err := m.source.Tasks(ctx, credential, id.From, id.To)
	if err != nil {
		return fmt.Errorf("fetch tasks for %s: %w", id, err)
	}

	err = task.Validate(tasks)
	if err != nil {
		return fmt.Errorf("draft %s: %w", id, err)
	}

	payload, err := task.Encode(tasks)
	if err != nil {
		return err
	}

	err = m.storage.Write(NamespaceDrafts, id.Key(), payload)
	if err != nil {
		return fmt.Errorf("store draft %s: %w", id, err)
	}

	m.log.WithFields(logrus.Fields{"from": id.From, "to": id.To, "tasks": len(tasks)}).Info("draft updated")

	return nil
}

// Drafts lists stored drafts ordered by period.
func (m *Manager) Drafts() ([]Draft, error) {
	entries, err := m.storage.List(NamespaceDrafts)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}

	out := make([]Draft, 0, len(entries))

	for key, mtime := range entries {
		id, err := ParseDraftKey(key)
		if err != nil {
			m.log.WithError(err).Warn("skipping foreign draft entry")

			continue
		}

		out = append(out, Draft{DraftID: id, MTime: mtime})
	}

	slices.SortFunc(out, func(a, b Draft) int {
		return cmp.Or(comparePeriods(a.DraftID, b.DraftID), a.MTime.Compare(b.MTime))
	})

	return out, nil
}

// DraftTasks returns the tasks stored in a draft.
func (m *Manager) DraftTasks(id DraftID) ([]task.Task, error) {
	return m.read(NamespaceDrafts, id.Key())
}

// DraftDelete removes a draft.
func (m *Manager) DraftDelete(id DraftID) error {
	err := m.storage.Delete(NamespaceDrafts, id.Key())
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}

	return nil
}

// DraftApprove freezes a draft into a snapshot stamped with the draft's
// modification time, then removes the draft.
func (m *Manager) DraftApprove(id DraftID) (SnapshotID, error) {
	payload, err := m.storage.Read(NamespaceDrafts, id.Key())
	if err != nil {
		return SnapshotID{}, fmt.Errorf("read draft %s: %w", id, err)
	}

	entries, err := m.storage.List(NamespaceDrafts)
	if err != nil {
		return SnapshotID{}, fmt.Errorf("list drafts: %w", err)
	}

	mtime, ok := entries[id.Key()]
	if !ok {
		return SnapshotID{}, fmt.Errorf("%w: %s", ErrDraftDisappeared, id)
	}

	sid := SnapshotID{From: id.From, To: id.To, MTime: mtime}

	err = m.storage.Write(NamespaceSnapshots, sid.Key(), payload)
	if err != nil {
		return SnapshotID{}, fmt.Errorf("store snapshot %s: %w", sid, err)
	}

	err = m.storage.Delete(NamespaceDrafts, id.Key())
	if err != nil {
		return SnapshotID{}, fmt.Errorf("delete approved draft %s: %w", id, err)
	}

	m.log.WithFields(logrus.Fields{"from": id.From, "to": id.To, "mtime": mtime}).Info("draft approved")

	return sid, nil
}

// Snapshots lists approved snapshots ordered by period, then approval time.
func (m *Manager) Snapshots() ([]SnapshotID, error) {
	entries, err := m.storage.List(NamespaceSnapshots)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]SnapshotID, 0, len(entries))

	for key := range entries {
		id, err := ParseSnapshotKey(key)
		if err != nil {
			m.log.WithError(err).Warn("skipping foreign snapshot entry")

			continue
		}

		out = append(out, id)
	}

	slices.SortFunc(out, func(a, b SnapshotID) int {
		return cmp.Or(comparePeriods(a.Draft(), b.Draft()), a.MTime.Compare(b.MTime))
	})

	return out, nil
}

// SnapshotTasks returns the tasks frozen in a snapshot.
func (m *Manager) SnapshotTasks(id SnapshotID) ([]task.Task, error) {
	return m.read(NamespaceSnapshots, id.Key())
}

// LatestSnapshot returns the most recently approved snapshot of a period.
func (m *Manager) LatestSnapshot(period DraftID) (SnapshotID, error) {
	all, err := m.Snapshots()
	if err != nil {
		return SnapshotID{}, err
	}

	var (
		latest SnapshotID
		found  bool
	)

	for _, s := range all {
		if s.Draft() != period {
			continue
		}

		if !found || s.MTime.After(latest.MTime) {
			latest, found = s, true
		}
	}

	if !found {
		return SnapshotID{}, fmt.Errorf("%w for %s", ErrNoSnapshot, period)
	}

	return latest, nil
}

// NextInterval returns the period that follows the latest approved one: from
// the day after its end through the day before today.
func (m *Manager) NextInterval(today time.Time) (DraftID, error) {
	all, err := m.Snapshots()
	if err != nil {
		return DraftID{}, err
	}

	var last time.Time

	for _, s := range all {
		to, err := time.Parse(DateLayout, s.To)
		if err != nil {
			continue
		}

		if to.After(last) {
			last = to
		}
	}

	if last.IsZero() {
		return DraftID{}, fmt.Errorf("%w: approve a first period explicitly", ErrNoSnapshot)
	}

	from := last.AddDate(0, 0, 1)
	y, mo, d := today.Date()
	to := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	if to.Before(from) {
		return DraftID{}, fmt.Errorf("%w: last period ends %s", ErrNothingToReport, last.Format(DateLayout))
	}

	return DraftID{From: from.Format(DateLayout), To: to.Format(DateLayout)}, nil
}

func (m *Manager) read(namespace, key string) ([]task.Task, error) {
	payload, err := m.storage.Read(namespace, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", namespace, err)
	}

	tasks, err := task.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}

	return tasks, nil
}

func comparePeriods(a, b DraftID) int {
	return cmp.Or(compareDates(a.From, b.From), compareDates(a.To, b.To))
}

func compareDates(a, b string) int {
	ta, errA := time.Parse(DateLayout, a)
	tb, errB := time.Parse(DateLayout, b)

	if errA != nil || errB != nil {
		return cmp.Compare(a, b)
	}

	return ta.Compare(tb)
}
