package types

import "strings"

// CreateApplicationRequest carries the fields needed to create an application
type CreateApplicationRequest struct {
	Company         string `json:"company" validate:"required"`
	Role            string `json:"role" validate:"required"`
	ApplicationLink string `json:"application_link,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (r *CreateApplicationRequest) Normalize() {
	r.Company = strings.TrimSpace(r.Company)
	r.Role = strings.TrimSpace(r.Role)
	r.ApplicationLink = strings.TrimSpace(r.ApplicationLink)
}

// AppendStatusRequest carries a status transition for an application
type AppendStatusRequest struct {
	ApplicationID int64  `json:"application_id"`
	Status        string `json:"status" validate:"required"`
}

// Normalize trims surrounding whitespace from the status label.
func (r *AppendStatusRequest) Normalize() {
	r.Status = strings.TrimSpace(r.Status)
}

// RecordOutreachRequest carries an outreach attempt for an application
type RecordOutreachRequest struct {
	ApplicationID int64        `json:"application_id"`
	Channel       string       `json:"channel" validate:"required"`
	OutreachType  OutreachType `json:"outreach_type" validate:"required,oneof=initial follow_up"`
}

// Normalize trims surrounding whitespace from the channel and type.
func (r *RecordOutreachRequest) Normalize() {
	r.Channel = strings.TrimSpace(r.Channel)
	r.OutreachType = OutreachType(strings.TrimSpace(string(r.OutreachType)))
}

// ListApplicationsFilter defines filtering options for ListApplications
type ListApplicationsFilter struct {
	Company string // optional: case-insensitive exact match
	Limit   int    // default: 100
	Offset  int    // default: 0
}
