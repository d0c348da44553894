package billing

import "errors"

var (
	// ErrEmptySubscriberID is returned when subscriber id is empty.
	ErrEmptySubscriberID = errors.New("billing: empty subscriber id")
	// ErrInvalidPeriod is returned when a period end is not after its start.
	ErrInvalidPeriod = errors.New("billing: invalid period")
	// ErrInvalidMonth is returned when a month is not YYYY-MM.
	ErrInvalidMonth = errors.New("billing: month must be YYYY-MM")
	// ErrPeriodOpen is returned when a period has not ended yet; use the provisional bill instead.
	ErrPeriodOpen = errors.New("billing: period has not ended")
	// ErrBillNotFound is returned when a bill id is unknown.
	ErrBillNotFound = errors.New("billing: bill not found")
	// ErrDuplicateBillPeriod is returned when a bill already exists for the period.
	ErrDuplicateBillPeriod = errors.New("billing: duplicate bill period")
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("billing: invalid status")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("billing: invalid status transition")
	// ErrStatusConflict is returned when a concurrent update changed the status first.
	ErrStatusConflict = errors.New("billing: status changed concurrently")
	// ErrInvalidRate is returned when a rate is negative or not finite.
	ErrInvalidRate = errors.New("billing: invalid rate")
	// ErrNilBill is returned when inserting a nil bill.
	ErrNilBill = errors.New("billing: nil bill")
)
