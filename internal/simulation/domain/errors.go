package simulation

import "errors"

var (
	// ErrEmptySubscriberID is returned when subscriber id is empty.
	ErrEmptySubscriberID = errors.New("simulation: empty subscriber id")
	// ErrInvalidTimestamp is returned when a reading timestamp is zero.
	ErrInvalidTimestamp = errors.New("simulation: invalid timestamp")
	// ErrNegativeValue is returned when a reading carries a negative or non-finite value.
	ErrNegativeValue = errors.New("simulation: negative value")
	// ErrInvalidRange is returned when a range query has end <= start.
	ErrInvalidRange = errors.New("simulation: invalid range")
	// ErrSchedulerClosed is returned when starting a loop after StopAll.
	ErrSchedulerClosed = errors.New("simulation: scheduler closed")
	// ErrSubscriptionInactive is returned when simulating a non-active subscription.
	ErrSubscriptionInactive = errors.New("simulation: subscription not active")
)
