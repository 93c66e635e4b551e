package cli

import (
	"context"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/report"
	"github.com/coordinatio/TFS-excel-docx-generate/internal/snapshot"
)

const listTimeLayout = time.RFC3339

// UpdateCmd returns the update command.
func UpdateCmd(a *app) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	period := addPeriodFlags(fs)
	next := fs.BoolP("next", "n", false, "Use the period after the latest snapshot, up to yesterday")

	return &Command{
		Flags: fs,
		Usage: "update (--from <date> --to <date> | --next)",
		Short: "Fetch tasks from the tracker into a draft",
		Long: `Fetch the tasks closed within the period from the tracker and store them
as the draft of that period, replacing any previous draft of it.

--next starts the day after the newest approved snapshot and ends yesterday.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execUpdate(ctx, o, a, period, *next)
		},
	}
}

func execUpdate(ctx context.Context, o *IO, a *app, period *periodFlags, next bool) error {
	if next && period.set() {
		return fmt.Errorf("%w: --next with --from/--to", ErrConflictingFlags)
	}

	if a.deps.Source == nil && a.cfg.TrackerURL == "" {
		return ErrMissingTracker
	}

	if a.deps.Source == nil && a.cfg.Secrets.TrackerPAT == "" {
		return ErrMissingPAT
	}

	m, err := a.manager()
	if err != nil {
		return err
	}

	var id snapshot.DraftID

	if next {
		id, err = m.NextInterval(a.deps.Now())
	} else {
		id, err = period.draftID()
	}

	if err != nil {
		return err
	}

	err = m.DraftUpdate(ctx, a.cfg.Secrets.TrackerPAT, id)
	if err != nil {
		return err
	}

	tasks, err := m.DraftTasks(id)
	if err != nil {
		return err
	}

	o.Printf("Updated draft %s (%d tasks)\n", id, len(tasks))

	return nil
}

// DraftsCmd returns the drafts command.
func DraftsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("drafts", flag.ContinueOnError),
		Usage: "drafts",
		Short: "List drafts",
		Long:  "List drafts ordered by period: first day, last day and when the draft was last updated.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}

			drafts, err := m.Drafts()
			if err != nil {
				return err
			}

			for _, d := range drafts {
				o.Printf("%s\t%s\t%s\n", d.From, d.To, d.MTime.Local().Format(listTimeLayout))
			}

			return nil
		},
	}
}

// DraftCmd returns the draft command.
func DraftCmd(a *app) *Command {
	fs := flag.NewFlagSet("draft", flag.ContinueOnError)
	period := addPeriodFlags(fs)
	out := fs.StringP("out", "o", "", "Output file (default time_report_<from>_<to>.xlsx)")

	return &Command{
		Flags: fs,
		Usage: "draft --from <date> --to <date> [--out <file>]",
		Short: "Render the spreadsheet of a draft",
		Long:  "Render the allocation spreadsheet of a draft for review before approval.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			id, err := period.draftID()
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			tasks, err := m.DraftTasks(id)
			if err != nil {
				return err
			}

			mx, spend, err := a.buildMatrix(o, tasks)
			if err != nil {
				return err
			}

			data, err := report.Spreadsheet(mx, spend, id.From, id.To)
			if err != nil {
				return err
			}

			path := a.outputPath(*out, fmt.Sprintf("time_report_%s_%s.xlsx", id.From, id.To))

			err = writeOutput(path, data)
			if err != nil {
				return err
			}

			o.Println("Wrote", path)

			return nil
		},
	}
}

// DeleteCmd returns the delete command.
func DeleteCmd(a *app) *Command {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	period := addPeriodFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "delete --from <date> --to <date>",
		Short: "Delete a draft",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			id, err := period.draftID()
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			err = m.DraftDelete(id)
			if err != nil {
				return err
			}

			o.Println("Deleted draft", id.String())

			return nil
		},
	}
}

// ApproveCmd returns the approve command.
func ApproveCmd(a *app) *Command {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	period := addPeriodFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "approve --from <date> --to <date>",
		Short: "Freeze a draft into a snapshot",
		Long: `Freeze a draft into an immutable snapshot and remove the draft.
The snapshot is stamped with the time the draft was last updated.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			id, err := period.draftID()
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			sid, err := m.DraftApprove(id)
			if err != nil {
				return err
			}

			o.Println("Approved", sid.String())

			return nil
		},
	}
}
