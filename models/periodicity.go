package models

import "fmt"

// Periodicity is the recurrence category that determines which months of a
// year are scheduled checkpoints for a requirement. The set is closed; values
// outside it are configuration errors.
type Periodicity string

const (
	Monthly    Periodicity = "monthly"
	Bimonthly  Periodicity = "bimonthly"
	Quarterly  Periodicity = "quarterly"
	Semiannual Periodicity = "semiannual"
	Annual     Periodicity = "annual"
)

// MonthsPerYear is the fixed length of every execution plan.
const MonthsPerYear = 12

// Expand reports which month indexes (0-based) are scheduled checkpoints
// under this periodicity. The pattern never shifts between years, so no year
// parameter is needed. An unrecognized periodicity fails with
// ErrInvalidPeriodicity instead of silently returning "nothing planned".
func (p Periodicity) Expand() ([MonthsPerYear]bool, error) {
	var months [MonthsPerYear]bool
	switch p {
	case Monthly:
		for i := range months {
			months[i] = true
		}
	case Bimonthly:
		// Jan, Mar, May, Jul, Sep, Nov
		for i := 0; i < MonthsPerYear; i += 2 {
			months[i] = true
		}
	case Quarterly:
		// Mar, Jun, Sep, Dec
		for i := range months {
			if (i+1)%3 == 0 {
				months[i] = true
			}
		}
	case Semiannual:
		months[5], months[11] = true, true
	case Annual:
		months[11] = true
	default:
		return months, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, string(p))
	}
	return months, nil
}

// SpanLength is the number of consecutive months covered by one checkpoint.
// Calendar rendering and aggregation group months into spans of this size.
func (p Periodicity) SpanLength() (int, error) {
	switch p {
	case Monthly:
		return 1, nil
	case Bimonthly:
		return 2, nil
	case Quarterly:
		return 3, nil
	case Semiannual:
		return 6, nil
	case Annual:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, string(p))
	}
}

// CheckpointCount is the number of scheduled checkpoints per year.
func (p Periodicity) CheckpointCount() (int, error) {
	span, err := p.SpanLength()
	if err != nil {
		return 0, err
	}
	return MonthsPerYear / span, nil
}
