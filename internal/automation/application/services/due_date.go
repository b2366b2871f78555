package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/calloutapp/callout/internal/automation/domain"
)

var relativeDuePattern = regexp.MustCompile(`^\+\s*(\d+)\s*(hour|day|week)s?$`)

// CalculateDueDate resolves a create_task due-date expression: a named
// preset ("scheduled_date", "tomorrow", "next_week"), a relative offset
// ("+3 days", "+2 hours", "+1 week"), or a literal ISO date. An empty
// expression yields no due date.
func CalculateDueDate(expr string, ec *domain.ExecutionContext, now time.Time) (*time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	switch expr {
	case "scheduled_date":
		if ec != nil && ec.Job != nil && ec.Job.ScheduledAt != nil {
			due := *ec.Job.ScheduledAt
			return &due, nil
		}
		return nil, fmt.Errorf("%w: due date %q requires a scheduled job", domain.ErrConfiguration, expr)
	case "tomorrow":
		due := now.Add(24 * time.Hour)
		return &due, nil
	case "next_week":
		due := now.Add(7 * 24 * time.Hour)
		return &due, nil
	}

	if m := relativeDuePattern.FindStringSubmatch(strings.ToLower(expr)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad due date offset %q", domain.ErrConfiguration, expr)
		}
		var due time.Time
		switch m[2] {
		case "hour":
			due = now.Add(time.Duration(n) * time.Hour)
		case "day":
			due = now.Add(time.Duration(n) * 24 * time.Hour)
		case "week":
			due = now.Add(time.Duration(n) * 7 * 24 * time.Hour)
		}
		return &due, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if due, err := time.Parse(layout, expr); err == nil {
			return &due, nil
		}
	}

	return nil, fmt.Errorf("%w: unrecognized due date %q", domain.ErrConfiguration, expr)
}
