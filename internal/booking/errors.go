package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid booking input")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotUnavailable     = errors.New("slot no longer available")
)

// UnknownAddOnsError reports add-on ids that do not exist in the catalog.
// A booking that references them is malformed, not retryable.
type UnknownAddOnsError struct {
	IDs []string
}

func (e *UnknownAddOnsError) Error() string {
	return fmt.Sprintf("unknown add-ons: %s", strings.Join(e.IDs, ", "))
}
