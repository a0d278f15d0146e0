package model

import "time"

// Service is a bookable grooming offering. Buffers are setup/cleanup minutes
// that must stay clear around a booking but are not themselves billable.
type Service struct {
	ID                string
	Name              string
	BasePriceCents    int64
	DurationMinutes   int
	BufferPreMinutes  int
	BufferPostMinutes int
	CreatedAt         time.Time
}

// AddOn is an optional extra line item. Its price is snapshotted onto the
// appointment at booking time; later catalog changes never alter history.
type AddOn struct {
	ID         string
	Name       string
	PriceCents int64
	CreatedAt  time.Time
}

// AvailabilityRule is one recurring working-window pattern for a staff member.
// Recurrence holds the textual weekly pattern; BufferPreMinutes and
// BufferPostMinutes are the staff member's own required gaps (travel time and
// the like), distinct from service buffers.
type AvailabilityRule struct {
	ID                string
	StaffID           string
	Recurrence        string
	Timezone          string
	BufferPreMinutes  int
	BufferPostMinutes int
	CreatedAt         time.Time
}

// Blackout marks a staff member unavailable for a fixed interval regardless
// of recurring rules.
type Blackout struct {
	ID       string
	StaffID  string
	StartsAt time.Time
	EndsAt   time.Time
	Reason   string
}

type AppointmentStatus string

const (
	StatusBooked     AppointmentStatus = "booked"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCanceled   AppointmentStatus = "canceled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// ActiveStatuses are the statuses that occupy busy time. Canceled and no-show
// appointments never block slots.
var ActiveStatuses = []AppointmentStatus{StatusBooked, StatusCheckedIn, StatusInProgress, StatusCompleted}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusBooked, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                string
	StaffID           string
	ClientID          string
	PetID             string
	ServiceID         string
	StartsAt          time.Time
	EndsAt            time.Time
	PriceServiceCents int64
	PriceAddOnsCents  int64
	DiscountCents     int64
	TaxCents          int64
	Status            AppointmentStatus
	Notes             string
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppointmentAddOn is one snapshotted add-on line item on an appointment.
type AppointmentAddOn struct {
	AppointmentID string
	AddOnID       string
	PriceCents    int64
}

// AppointmentPatch is a partial update. Nil fields are left untouched.
type AppointmentPatch struct {
	Status   *AppointmentStatus
	Discount *int64
	Tax      *int64
	Notes    *string
	StartsAt *time.Time
	EndsAt   *time.Time
	StaffID  *string
}

// RescheduleLink is a single-use capability token bound to one appointment.
// It is redeemable iff UsedAt is nil and ExpiresAt (when set) is in the future.
type RescheduleLink struct {
	ID            string
	AppointmentID string
	Token         string
	ExpiresAt     *time.Time
	UsedAt        *time.Time
	CreatedBy     string
	CreatedAt     time.Time
}

// Slot is a candidate bookable start for one staff member.
type Slot struct {
	StaffID string
	Start   time.Time
	End     time.Time
}
