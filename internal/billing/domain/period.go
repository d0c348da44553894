package billing

import "time"

// MonthLayout is the accepted month format.
const MonthLayout = "2006-01"

// BillingPeriod is the half-open interval [Start, End) billed for a subscriber.
type BillingPeriod struct {
	SubscriberID string    `json:"subscriber_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Validate checks the period bounds.
func (p BillingPeriod) Validate() error {
	if p.SubscriberID == "" {
		return ErrEmptySubscriberID
	}
	if p.Start.IsZero() || !p.End.After(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether t falls within the period.
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Label renders the period for documents.
func (p BillingPeriod) Label() string {
	if p.Start.Day() == 1 && p.End.Equal(p.Start.AddDate(0, 1, 0)) {
		return p.Start.Format(MonthLayout)
	}
	return p.Start.Format("2006-01-02") + " to " + p.End.Format("2006-01-02")
}

// MonthPeriod builds the calendar-month period for a YYYY-MM month in loc.
func MonthPeriod(subscriberID, month string, loc *time.Location) (BillingPeriod, error) {
	if subscriberID == "" {
		return BillingPeriod{}, ErrEmptySubscriberID
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(MonthLayout, month, loc)
	if err != nil {
		return BillingPeriod{}, ErrInvalidMonth
	}
	start := MonthStart(t)
	return BillingPeriod{SubscriberID: subscriberID, Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// MonthStart returns midnight of the first day of t's month, in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
