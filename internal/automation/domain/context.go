package domain

import (
	"time"

	"github.com/google/uuid"

	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
)

// ExecutionContext is the ephemeral bag of live entity data available to
// one firing. Entities are read-only references supplied by the caller;
// the engine only reads them for condition evaluation and interpolation.
// Timezone is carried here so every interpolation and gating decision in a
// firing shares one source of truth.
type ExecutionContext struct {
	RuleID       uuid.UUID
	UserID       uuid.UUID
	Client       *fieldops.Client
	Job          *fieldops.Job
	Task         *fieldops.Task
	Technician   *fieldops.Technician
	Organization *fieldops.Organization
	Trigger      map[string]any
	Timezone     string
	TestMode     bool
}

// Location resolves the context timezone, falling back to UTC when the
// timezone is absent or unknown.
func (ec *ExecutionContext) Location() *time.Location {
	if ec == nil || ec.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(ec.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Flatten derives the key-path map conditions are evaluated against:
// trigger payload keys at the top level plus flattened entity fields.
// The receiver is never mutated.
func (ec *ExecutionContext) Flatten() map[string]any {
	data := make(map[string]any)
	if ec == nil {
		return data
	}

	for k, v := range ec.Trigger {
		data[k] = v
	}

	if c := ec.Client; c != nil {
		data["client_name"] = c.Name()
		data["client_first_name"] = c.FirstName
		data["client_last_name"] = c.LastName
		data["client_email"] = c.Email
		data["client_phone"] = c.Phone
		data["client_city"] = c.City
		data["client_state"] = c.State
	}
	if j := ec.Job; j != nil {
		data["job_title"] = j.Title
		data["job_type"] = j.Type
		data["job_status"] = string(j.Status)
		data["job_number"] = j.Number
	}
	if t := ec.Task; t != nil {
		data["task_title"] = t.Title
		data["task_status"] = t.Status
		data["task_priority"] = string(t.Priority)
	}
	if tech := ec.Technician; tech != nil {
		data["technician_name"] = tech.Name
		data["technician_role"] = tech.Role
	}

	return data
}
