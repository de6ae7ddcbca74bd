package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/af-corp/costrouter/internal/usage"
)

const dateLayout = "2006-01-02"

// parseTime accepts RFC 3339 timestamps or bare dates. A bare date used as
// an upper bound covers the whole day.
func parseTime(s string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}

func parseRange(q url.Values) (usage.Range, error) {
	var r usage.Range
	if s := q.Get("from"); s != "" {
		t, err := parseTime(s, false)
		if err != nil {
			return r, err
		}
		r.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseTime(s, true)
		if err != nil {
			return r, err
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("to must not be before from")
	}
	return r, nil
}

// parsePositiveInt returns def when key is absent.
func parsePositiveInt(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
