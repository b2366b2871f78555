// Package services contains the automation execution engine: template
// interpolation, condition evaluation, delivery-window gating, action
// dispatch, multi-channel fallback, and the per-firing executor.
package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// Display formats for temporal tokens. These are a stable contract with
// stored templates: rule authors see "Fri, Mar 15, 2024" and "2:00 PM".
const (
	displayDateLayout = "Mon, Jan 2, 2006"
	displayTimeLayout = "3:04 PM"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Interpolate resolves {{token}} placeholders in a template against the
// execution context. Unresolved tokens are left verbatim; callers must not
// assume total substitution. All temporal tokens render in the context
// timezone, never server time.
func Interpolate(template string, ec *domain.ExecutionContext) string {
	return interpolateAt(template, ec, time.Now())
}

func interpolateAt(template string, ec *domain.ExecutionContext, now time.Time) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if value, ok := resolveToken(name, ec, now); ok {
			return value
		}
		return match
	})
}

// resolveToken looks up a single token. Missing context branches report
// not-ok so the token stays verbatim in the output.
func resolveToken(name string, ec *domain.ExecutionContext, now time.Time) (string, bool) {
	if ec == nil {
		return "", false
	}
	loc := ec.Location()
	local := now.In(loc)

	switch name {
	case "current_date":
		return local.Format(displayDateLayout), true
	case "current_time":
		return local.Format(displayTimeLayout), true
	case "tomorrow_date":
		return local.AddDate(0, 0, 1).Format(displayDateLayout), true
	case "scheduled_date", "appointment_date":
		if ec.Job != nil && ec.Job.ScheduledAt != nil {
			return ec.Job.ScheduledAt.In(loc).Format(displayDateLayout), true
		}
		return "", false
	case "scheduled_time", "appointment_time":
		if ec.Job != nil && ec.Job.ScheduledAt != nil {
			return ec.Job.ScheduledAt.In(loc).Format(displayTimeLayout), true
		}
		return "", false
	}

	if c := ec.Client; c != nil {
		switch name {
		case "client_name":
			return c.Name(), true
		case "client_first_name":
			return c.FirstName, true
		case "client_last_name":
			return c.LastName, true
		case "client_email":
			return c.Email, true
		case "client_phone":
			return c.Phone, true
		case "client_address":
			return c.Address, true
		case "client_city":
			return c.City, true
		case "client_state":
			return c.State, true
		case "client_zip":
			return c.Zip, true
		}
	}

	if j := ec.Job; j != nil {
		switch name {
		case "job_title":
			return j.Title, true
		case "job_description":
			return j.Description, true
		case "job_type":
			return j.Type, true
		case "job_status":
			return string(j.Status), true
		case "job_number":
			return j.Number, true
		case "job_address":
			return j.Address, true
		}
	}

	if t := ec.Technician; t != nil {
		switch name {
		case "technician_name":
			return t.Name, true
		case "technician_phone":
			return t.Phone, true
		case "technician_email":
			return t.Email, true
		}
	}

	if o := ec.Organization; o != nil {
		switch name {
		case "company_name":
			return o.Name, true
		case "company_phone":
			return o.Phone, true
		case "company_email":
			return o.Email, true
		case "company_website":
			return o.Website, true
		case "booking_link":
			return o.BookingLink, true
		case "review_link":
			return o.ReviewLink, true
		}
	}

	return "", false
}
