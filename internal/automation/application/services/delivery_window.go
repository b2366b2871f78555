package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// Default business-hours range when a window requires business hours but
// carries no explicit time range.
const (
	defaultWindowStart = 9 * 60  // 09:00
	defaultWindowEnd   = 17 * 60 // 17:00
)

// nextDeliveryHorizon bounds the forward scan in NextDeliveryTime. A
// window that admits no instant within two weeks is treated as
// misconfigured and falls back to next-day 09:00 local.
const nextDeliveryHorizon = 14 * 24 * time.Hour

// IsDeliverable reports whether now, viewed in the given timezone, falls
// inside the window: allowed weekday, inside business hours (start
// inclusive, end exclusive, minute granularity), and outside quiet hours.
func IsDeliverable(w domain.DeliveryWindow, timezone string, now time.Time) bool {
	loc := loadLocation(timezone)
	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	if len(w.AllowedDays) > 0 && !dayAllowed(w.AllowedDays, local.Weekday()) {
		return false
	}

	if w.BusinessHoursOnly {
		start, end := defaultWindowStart, defaultWindowEnd
		if w.TimeRange != nil {
			if s, ok := parseClock(w.TimeRange.Start); ok {
				start = s
			}
			if e, ok := parseClock(w.TimeRange.End); ok {
				end = e
			}
		}
		if minutes < start || minutes >= end {
			return false
		}
	}

	if q := w.QuietHours; q != nil {
		qs, sok := parseClock(q.Start)
		qe, eok := parseClock(q.End)
		if sok && eok && inQuietHours(minutes, qs, qe) {
			return false
		}
	}

	return true
}

// NextDeliveryTime computes the next instant satisfying every window
// constraint simultaneously, scanning forward at minute granularity from
// the minute after now. If the bounded scan finds nothing the window is
// effectively closed; deliver next day 09:00 local rather than dropping.
func NextDeliveryTime(w domain.DeliveryWindow, timezone string, now time.Time) time.Time {
	loc := loadLocation(timezone)
	candidate := now.In(loc).Truncate(time.Minute).Add(time.Minute)
	deadline := candidate.Add(nextDeliveryHorizon)

	for candidate.Before(deadline) {
		if IsDeliverable(w, timezone, candidate) {
			return candidate
		}
		candidate = candidate.Add(time.Minute)
	}

	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 9, 0, 0, 0, loc)
}

// inQuietHours checks membership in [start, end), wrapping past midnight
// when start > end.
func inQuietHours(minutes, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

var weekdayTokens = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// dayAllowed accepts "mon".."sun" tokens as well as full lowercase names.
func dayAllowed(allowed []string, day time.Weekday) bool {
	token := weekdayTokens[day]
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == token || strings.HasPrefix(d, token) {
			return true
		}
	}
	return false
}

func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
