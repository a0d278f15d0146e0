package storage

// SlotSource bundles the three repositories a slot computation reads from.
// Method promotion supplies the full read surface: service lookups from the
// catalog, rules and blackouts from the schedule, busy time from appointments.
type SlotSource struct {
	*CatalogRepository
	*ScheduleRepository
	*AppointmentRepository
}

func NewSlotSource(catalog *CatalogRepository, schedule *ScheduleRepository, appointments *AppointmentRepository) *SlotSource {
	return &SlotSource{
		CatalogRepository:     catalog,
		ScheduleRepository:    schedule,
		AppointmentRepository: appointments,
	}
}
