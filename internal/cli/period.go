package cli

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/snapshot"
)

// periodFlags registers --from and --to on fs.
type periodFlags struct {
	from string
	to   string
}

func addPeriodFlags(fs *flag.FlagSet) *periodFlags {
	p := &periodFlags{}
	fs.StringVarP(&p.from, "from", "f", "", "First day of the period (dd-mm-YYYY)")
	fs.StringVarP(&p.to, "to", "t", "", "Last day of the period, inclusive (dd-mm-YYYY)")

	return p
}

func (p *periodFlags) set() bool {
	return p.from != "" || p.to != ""
}

// draftID validates and normalizes the period.
func (p *periodFlags) draftID() (snapshot.DraftID, error) {
	if p.from == "" || p.to == "" {
		return snapshot.DraftID{}, ErrPeriodRequired
	}

	from, err := snapshot.NormalizeDate(p.from)
	if err != nil {
		return snapshot.DraftID{}, err
	}

	to, err := snapshot.NormalizeDate(p.to)
	if err != nil {
		return snapshot.DraftID{}, err
	}

	start, _ := time.Parse(snapshot.DateLayout, from)
	end, _ := time.Parse(snapshot.DateLayout, to)

	if end.Before(start) {
		return snapshot.DraftID{}, fmt.Errorf("%w: period ends %s before it starts %s", snapshot.ErrInvalidDate, to, from)
	}

	return snapshot.DraftID{From: from, To: to}, nil
}
