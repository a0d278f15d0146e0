package reschedule

import "errors"

var (
	ErrLinkNotFound        = errors.New("reschedule link not found")
	ErrLinkUsed            = errors.New("reschedule link already used")
	ErrLinkExpired         = errors.New("reschedule link expired")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrServiceMismatch     = errors.New("service does not match the original booking")
	ErrSlotUnavailable     = errors.New("slot no longer available")
	ErrTokenAllocation     = errors.New("could not allocate a unique token")
	ErrInvalidInput        = errors.New("invalid reschedule input")
)
