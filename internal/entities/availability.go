package entities

import "time"

type AvailabilityResponse struct {
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start_utc"`
	End        time.Time `json:"end_utc"`
	Available  bool      `json:"available"`
	ReasonCode string    `json:"reason_code,omitempty"`
}
