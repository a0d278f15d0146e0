package availability

import (
	"sort"
	"time"

	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/timeutil"
)

// busyIntervals folds appointments and blackouts into per-staff sorted,
// merged, non-overlapping busy spans. Appointment spans are padded by the
// service buffers so a new booking's own buffers cannot slide under a
// neighbor's; blackout spans are taken verbatim. Only active-status
// appointments contribute — canceled and no-show never block.
func busyIntervals(appts []model.Appointment, blackouts []model.Blackout, pre, post time.Duration) map[string][]timeutil.Interval {
	byStaff := make(map[string][]timeutil.Interval)

	for _, a := range appts {
		if !a.Status.Active() {
			continue
		}
		byStaff[a.StaffID] = append(byStaff[a.StaffID], timeutil.Interval{
			Start: a.StartsAt.Add(-pre),
			End:   a.EndsAt.Add(post),
		})
	}
	for _, b := range blackouts {
		byStaff[b.StaffID] = append(byStaff[b.StaffID], timeutil.Interval{Start: b.StartsAt, End: b.EndsAt})
	}

	for staffID, spans := range byStaff {
		byStaff[staffID] = mergeIntervals(spans)
	}
	return byStaff
}

// mergeIntervals sorts spans by start and folds overlapping or touching
// spans into single ones, removing the slot fragmentation buffer overlap
// would otherwise cause.
func mergeIntervals(spans []timeutil.Interval) []timeutil.Interval {
	if len(spans) <= 1 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	merged := spans[:1]
	for _, span := range spans[1:] {
		last := &merged[len(merged)-1]
		if !span.Start.After(last.End) {
			if span.End.After(last.End) {
				last.End = span.End
			}
			continue
		}
		merged = append(merged, span)
	}
	return merged
}
