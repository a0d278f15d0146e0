package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/timeutil"
)

// Recurrence text grammar: semicolon-separated KEY=VALUE pairs, e.g.
//
//	FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=9;BYMINUTE=30;DURATION=480;UNTIL=2026-12-31
//
// Only weekly patterns exist in the product. DURATION (minutes) is the
// rule's explicit occurrence length; when absent the caller's fallback
// duration applies. Unknown keys are ignored so the grammar can grow.

var weekdayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

type recurrencePattern struct {
	days        map[time.Weekday]bool
	startMinute int           // minute of day an occurrence starts
	duration    time.Duration // 0 = not encoded in rule
	until       time.Time     // zero = open-ended; inclusive last day
}

func parseRecurrence(text string) (recurrencePattern, error) {
	p := recurrencePattern{days: make(map[time.Weekday]bool)}
	freqSeen := false

	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return recurrencePattern{}, fmt.Errorf("malformed clause %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			if !strings.EqualFold(value, "WEEKLY") {
				return recurrencePattern{}, fmt.Errorf("unsupported FREQ %q", value)
			}
			freqSeen = true
		case "BYDAY":
			for _, name := range strings.Split(value, ",") {
				day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]
				if !ok {
					return recurrencePattern{}, fmt.Errorf("invalid BYDAY value %q", name)
				}
				p.days[day] = true
			}
		case "BYHOUR":
			h, err := strconv.Atoi(value)
			if err != nil || h < 0 || h > 23 {
				return recurrencePattern{}, fmt.Errorf("invalid BYHOUR value %q", value)
			}
			p.startMinute = h*60 + p.startMinute%60
		case "BYMINUTE":
			m, err := strconv.Atoi(value)
			if err != nil || m < 0 || m > 59 {
				return recurrencePattern{}, fmt.Errorf("invalid BYMINUTE value %q", value)
			}
			p.startMinute = (p.startMinute/60)*60 + m
		case "DURATION":
			mins, err := strconv.Atoi(value)
			if err != nil || mins <= 0 {
				return recurrencePattern{}, fmt.Errorf("invalid DURATION value %q", value)
			}
			p.duration = time.Duration(mins) * time.Minute
		case "UNTIL":
			day, err := time.Parse("2006-01-02", value)
			if err != nil {
				return recurrencePattern{}, fmt.Errorf("invalid UNTIL value %q", value)
			}
			p.until = day
		}
	}

	if !freqSeen {
		return recurrencePattern{}, fmt.Errorf("missing FREQ clause")
	}
	if len(p.days) == 0 {
		return recurrencePattern{}, fmt.Errorf("missing BYDAY clause")
	}
	return p, nil
}

// expandRule turns one availability rule into the concrete working intervals
// that overlap [from, to). fallback is the occurrence duration used when the
// rule does not encode one; expansion scans back one duration before from so
// an occurrence straddling the window start is not missed, then keeps
// occurrences whose end falls at or after from. Malformed rules expand to
// nothing; the error is returned for logging, never to fail the query.
func expandRule(rule model.AvailabilityRule, from, to time.Time, fallback time.Duration) ([]timeutil.Interval, error) {
	pattern, err := parseRecurrence(rule.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	loc := time.UTC
	if rule.Timezone != "" {
		loc, err = time.LoadLocation(rule.Timezone)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid timezone %q", rule.ID, rule.Timezone)
		}
	}

	duration := pattern.duration
	if duration <= 0 {
		duration = fallback
	}
	if duration <= 0 || !to.After(from) {
		return nil, nil
	}

	var out []timeutil.Interval
	scanStart := from.Add(-duration).In(loc)
	firstDay := time.Date(scanStart.Year(), scanStart.Month(), scanStart.Day(), 0, 0, 0, 0, loc)
	for day := firstDay; day.Before(to); day = day.AddDate(0, 0, 1) {
		if !pattern.days[day.Weekday()] {
			continue
		}
		if !pattern.until.IsZero() {
			lastDay := time.Date(pattern.until.Year(), pattern.until.Month(), pattern.until.Day(), 0, 0, 0, 0, loc)
			if day.After(lastDay) {
				break
			}
		}

		start := timeutil.AddMinutes(day, pattern.startMinute)
		end := start.Add(duration)
		if !end.After(start) {
			continue
		}
		if end.Before(from) || !start.Before(to) {
			continue
		}
		out = append(out, timeutil.Interval{Start: start, End: end})
	}
	return out, nil
}
