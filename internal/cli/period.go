package cli

import (
	"fmt"

	"ledgerlens/internal/core"
)

// ResolvePeriod turns command flags into a range. An explicit from/to
// pair wins (to is inclusive); otherwise the calendar window of kind
// containing anchor, or today when anchor is empty.
func ResolvePeriod(kind, anchor, from, to string, today core.Date) (core.PeriodRange, error) {
	if from != "" || to != "" {
		if from == "" || to == "" {
			return core.PeriodRange{}, fmt.Errorf("--from and --to must be given together")
		}
		start, err := core.ParseDate(from)
		if err != nil {
			return core.PeriodRange{}, err
		}
		end, err := core.ParseDate(to)
		if err != nil {
			return core.PeriodRange{}, err
		}
		if end.Before(start) {
			return core.PeriodRange{}, fmt.Errorf("--to %s is before --from %s", to, from)
		}
		return core.NewPeriodRange(start, end.AddDays(1)), nil
	}

	d := today
	if anchor != "" {
		var err error
		if d, err = core.ParseDate(anchor); err != nil {
			return core.PeriodRange{}, err
		}
	}
	return core.WindowFor(core.Period(kind), d)
}
