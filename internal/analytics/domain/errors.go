package analytics

import "errors"

var (
	// ErrEmptySubscriberID is returned when subscriber id is empty.
	ErrEmptySubscriberID = errors.New("analytics: empty subscriber id")
	// ErrInvalidGranularity is returned when granularity is unsupported.
	ErrInvalidGranularity = errors.New("analytics: invalid granularity")
	// ErrInvalidPeriodStart is returned when the period start is zero.
	ErrInvalidPeriodStart = errors.New("analytics: invalid period start")
	// ErrInvalidRange is returned when end is not after start.
	ErrInvalidRange = errors.New("analytics: invalid range")
)
