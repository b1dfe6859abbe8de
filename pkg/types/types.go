package types

import (
	"fmt"
	"time"
)

// Application represents a single job application
type Application struct {
	ID              int64     `json:"application_id"`
	Company         string    `json:"company"`
	Role            string    `json:"role"`
	ApplicationLink *string   `json:"application_link,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Link returns the application link, or an empty string when none was recorded
func (a Application) Link() string {
	if a.ApplicationLink == nil {
		return ""
	}
	return *a.ApplicationLink
}

// StatusHistoryEntry is one status label attached to an application
type StatusHistoryEntry struct {
	ID            int64     `json:"status_id"`
	ApplicationID int64     `json:"application_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// OutreachType is the kind of an outreach attempt
type OutreachType string

const (
	OutreachInitial  OutreachType = "initial"
	OutreachFollowUp OutreachType = "follow_up"
)

var validOutreachTypes = []OutreachType{
	OutreachInitial,
	OutreachFollowUp,
}

// IsValid reports whether the value is one of the known outreach types.
func (o OutreachType) IsValid() bool {
	for _, candidate := range validOutreachTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutreachType converts a raw string into an OutreachType.
func ParseOutreachType(value string) (OutreachType, error) {
	for _, candidate := range validOutreachTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outreach type %q", value)
}

// OutreachEvent is one outreach attempt attached to an application
type OutreachEvent struct {
	ID            int64        `json:"outreach_id"`
	ApplicationID int64        `json:"application_id"`
	Channel       string       `json:"channel"`
	OutreachType  OutreachType `json:"outreach_type"`
	Timestamp     time.Time    `json:"timestamp"`
}
