package cli

import (
	"bytes"
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/essence"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/report"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/snapshot"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/task"
)

// SnapshotsCmd returns the snapshots command.
func SnapshotsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("snapshots", flag.ContinueOnError),
		Usage: "snapshots",
		Short: "List snapshots",
		Long:  "List approved snapshots ordered by period, then approval stamp.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}

			snaps, err := m.Snapshots()
			if err != nil {
				return err
			}

			for _, s := range snaps {
				o.Printf("%s\t%s\t%s\n", s.From, s.To, s.MTime.Local().Format(listTimeLayout))
			}

			return nil
		},
	}
}

// SnapshotCmd returns the snapshot command.
func SnapshotCmd(a *app) *Command {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	period := addPeriodFlags(fs)
	out := fs.StringP("out", "o", "", "Output file (default time_report_<from>_<to>.zip)")

	return &Command{
		Flags: fs,
		Usage: "snapshot --from <date> --to <date> [--out <file>]",
		Short: "Build the report bundle of a snapshot",
		Long: `Build the final report of the latest snapshot of a period: a zip with the
spreadsheet and, for every release and person, a "todo" and a "done" document
filled from the templates directory. Task summaries are generated once and
kept in the essence database.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			id, err := period.draftID()
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			sid, err := m.LatestSnapshot(id)
			if err != nil {
				return err
			}

			tasks, err := m.SnapshotTasks(sid)
			if err != nil {
				return err
			}

			tasks, _, err = a.enrich(ctx, tasks)
			if err != nil {
				return err
			}

			mx, spend, err := a.buildMatrix(o, tasks)
			if err != nil {
				return err
			}

			var buf bytes.Buffer

			err = report.Bundle(&buf, mx, spend, report.NewDocuments(a.cfg.TemplatesDir), sid.From, sid.To)
			if err != nil {
				return err
			}

			path := a.outputPath(*out, fmt.Sprintf("time_report_%s_%s.zip", sid.From, sid.To))

			err = writeOutput(path, buf.Bytes())
			if err != nil {
				return err
			}

			o.Println("Wrote", path)

			return nil
		},
	}
}

// CacheFillCmd returns the cache-fill command.
func CacheFillCmd(a *app) *Command {
	fs := flag.NewFlagSet("cache-fill", flag.ContinueOnError)
	period := addPeriodFlags(fs)
	fromDraft := fs.Bool("draft", false, "Use the draft of the period instead of its latest snapshot")

	return &Command{
		Flags: fs,
		Usage: "cache-fill --from <date> --to <date> [--draft]",
		Short: "Generate missing task summaries",
		Long: `Generate and store the summaries of every task of a period without
producing a report. Useful to spread AI requests over time before a deadline.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			id, err := period.draftID()
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			var tasks []task.Task

			if *fromDraft {
				tasks, err = m.DraftTasks(id)
			} else {
				var sid snapshot.SnapshotID

				sid, err = m.LatestSnapshot(id)
				if err == nil {
					tasks, err = m.SnapshotTasks(sid)
				}
			}

			if err != nil {
				return err
			}

			_, stats, err := a.enrich(ctx, tasks)
			if err != nil {
				return err
			}

			o.Printf("%d tasks: %d stored, %d generated, %d from title only\n",
				len(tasks), stats.Stored+stats.Memo, stats.Generated, stats.TitleOnly)

			return nil
		},
	}
}

func (a *app) enrich(ctx context.Context, tasks []task.Task) ([]task.Task, essence.Stats, error) {
	cache, closeDB, err := a.essenceCache(ctx)
	if err != nil {
		return nil, essence.Stats{}, err
	}
	defer closeDB()

	out, err := cache.Filter(ctx, tasks)
	if err != nil {
		return nil, essence.Stats{}, err
	}

	return out, cache.Stats(), nil
}
