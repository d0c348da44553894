package analytics

import "time"

// Granularity is the time resolution of a bucket.
type Granularity string

const (
	GranularityHour  Granularity = "HOUR"
	GranularityDay   Granularity = "DAY"
	GranularityMonth Granularity = "MONTH"
)

// IsValid reports whether granularity is supported.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityMonth:
		return true
	default:
		return false
	}
}

// Step returns the end of the bucket starting at start.
func (g Granularity) Step(start time.Time) time.Time {
	switch g {
	case GranularityHour:
		return start.Add(time.Hour)
	case GranularityDay:
		return start.AddDate(0, 0, 1)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Truncate returns the bucket start containing t, in t's location.
func (g Granularity) Truncate(t time.Time) time.Time {
	switch g {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// TimeKey is the compact label of a bucket boundary.
type TimeKey string

// NewTimeKey builds a TimeKey for the given granularity and bucket start.
func NewTimeKey(granularity Granularity, periodStart time.Time) (TimeKey, error) {
	if periodStart.IsZero() {
		return "", ErrInvalidPeriodStart
	}
	layout, err := timeKeyLayout(granularity)
	if err != nil {
		return "", err
	}
	return TimeKey(periodStart.Format(layout)), nil
}

// String returns the raw key.
func (k TimeKey) String() string { return string(k) }

func timeKeyLayout(granularity Granularity) (string, error) {
	switch granularity {
	case GranularityHour:
		return "20060102T15", nil
	case GranularityDay:
		return "20060102", nil
	case GranularityMonth:
		return "200601", nil
	default:
		return "", ErrInvalidGranularity
	}
}
