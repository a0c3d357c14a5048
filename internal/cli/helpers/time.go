package helpers

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// TimeFlags holds the flag values selecting a lower time bound.
type TimeFlags struct {
	Since string
	From  string
}

// AddFlags adds the time bound flags to a FlagSet.
func (f *TimeFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Since, "since", "", "Only runs that ended within this duration (e.g. 24h, 30m)")
	flags.StringVar(&f.From, "from", "", "Only runs that ended at or after this time (RFC3339 or YYYY-MM-DD)")
}

// Parse returns the lower bound, or the zero time when no flag was set.
// --from takes precedence over --since.
func (f *TimeFlags) Parse(now time.Time) (time.Time, error) {
	if f.From != "" {
		t, err := parseTime(f.From, now)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --from time: %w", err)
		}
		return t, nil
	}
	if f.Since != "" {
		d, err := time.ParseDuration(f.Since)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --since duration: %w", err)
		}
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since duration: %s is negative", f.Since)
		}
		return now.Add(-d), nil
	}
	return time.Time{}, nil
}

func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "now" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q (use RFC3339 or YYYY-MM-DD)", s)
}
