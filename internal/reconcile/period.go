package reconcile

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParsePeriod parses the inclusive bounds accepted by the CLI and the HTTP
// API. Bare dates are UTC; a bare "to" date covers its whole day. Empty
// bounds stay nil.
func ParsePeriod(from, to string) (*time.Time, *time.Time, error) {
	start, err := parseBound(from, false)
	if err != nil {
		return nil, nil, errors.Wrap(err, "from")
	}
	end, err := parseBound(to, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "to")
	}
	return start, end, nil
}

func parseBound(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "invalid date %q", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}
