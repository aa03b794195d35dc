package retention

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
)

// ParseRetentionDuration parses a retention config string like "7d", "4w",
// "1m", "1y" into a time.Duration. Units: d=1 day, w=7 days, m=30 days,
// y=365 days. There is no calendar-aware month/year arithmetic; the spec
// treats "1m"/"1y" as fixed day counts.
func ParseRetentionDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errs.New(errs.Configuration, "retention: empty duration string")
	}

	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, errs.New(errs.Configuration, fmt.Sprintf("retention: invalid duration %q", s))
	}

	var days int
	switch unit {
	case 'd':
		days = n
	case 'w':
		days = n * 7
	case 'm':
		days = n * 30
	case 'y':
		days = n * 365
	default:
		return 0, errs.New(errs.Configuration, fmt.Sprintf("retention: unknown unit in duration %q", s))
	}

	return time.Duration(days) * 24 * time.Hour, nil
}
