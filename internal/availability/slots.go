package availability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/timeutil"
)

// GridStep is the quantization grid for candidate slot starts.
const GridStep = 15 * time.Minute

// DefaultDuration applies when a service row carries no usable duration.
const DefaultDuration = 60 * time.Minute

// Query selects the service, an optional single staff member, and the
// half-open window [From, To) to enumerate slots in.
type Query struct {
	ServiceID string
	StaffID   string // empty = all staff
	From      time.Time
	To        time.Time
}

// Source supplies the data a slot computation reads. All times are read
// fresh per call; nothing is cached across requests, because stale rules or
// appointments would directly cause double-booking.
type Source interface {
	GetService(ctx context.Context, id string) (model.Service, bool, error)
	ListRules(ctx context.Context, staffID string) ([]model.AvailabilityRule, error)
	ListBlackouts(ctx context.Context, staffID string, from, to time.Time) ([]model.Blackout, error)
	ListActiveAppointments(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error)
}

type Generator struct {
	src    Source
	logger *slog.Logger
}

func NewGenerator(src Source, logger *slog.Logger) *Generator {
	return &Generator{src: src, logger: logger}
}

// ListSlots enumerates every bookable start for the query, sorted by start
// time. A slot is bookable when the service fits inside a rule's working
// window (after the rule's own buffers) and the buffer-extended block clears
// every busy interval for that staff member. An unknown service or an empty
// window yields no slots, not an error.
//
// Overlapping rules for the same staff member can emit the same start twice;
// that duplication is intentional product behavior and is not collapsed here.
func (g *Generator) ListSlots(ctx context.Context, q Query) ([]model.Slot, error) {
	if !q.To.After(q.From) {
		return nil, nil
	}

	svc, ok, err := g.src.GetService(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = DefaultDuration
	}
	pre := time.Duration(svc.BufferPreMinutes) * time.Minute
	post := time.Duration(svc.BufferPostMinutes) * time.Minute

	rules, err := g.src.ListRules(ctx, q.StaffID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	blackouts, err := g.src.ListBlackouts(ctx, q.StaffID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	appts, err := g.src.ListActiveAppointments(ctx, q.StaffID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	busy := busyIntervals(appts, blackouts, pre, post)

	// A window narrower than the fully buffered booking can never host it,
	// so the expansion fallback asks for at least that much.
	minBlock := duration + pre + post

	var slots []model.Slot
	for _, rule := range rules {
		windows, err := expandRule(rule, q.From, q.To, minBlock)
		if err != nil {
			g.logger.Warn("skipping unparsable availability rule", "rule_id", rule.ID, "staff_id", rule.StaffID, "err", err)
			continue
		}

		rulePre := time.Duration(rule.BufferPreMinutes) * time.Minute
		rulePost := time.Duration(rule.BufferPostMinutes) * time.Minute

		for _, window := range windows {
			earliest := window.Start.Add(rulePre)
			latest := window.End.Add(-rulePost)
			if !latest.After(earliest) {
				continue
			}

			start := timeutil.CeilToGrid(timeutil.MaxTime(earliest, q.From), GridStep)
			for candidate := start; candidate.Before(latest) && candidate.Before(q.To); candidate = candidate.Add(GridStep) {
				slotEnd := candidate.Add(duration)
				block := timeutil.Interval{Start: candidate.Add(-pre), End: slotEnd.Add(post)}

				if block.Start.Before(earliest) || block.End.After(latest) {
					continue
				}
				if slotEnd.After(q.To) || candidate.Before(q.From) {
					continue
				}
				if overlapsAny(block, busy[rule.StaffID]) {
					continue
				}
				slots = append(slots, model.Slot{StaffID: rule.StaffID, Start: candidate, End: slotEnd})
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].StaffID < slots[j].StaffID
	})
	return slots, nil
}

func overlapsAny(block timeutil.Interval, busy []timeutil.Interval) bool {
	for _, b := range busy {
		if block.Overlaps(b) {
			return true
		}
	}
	return false
}
