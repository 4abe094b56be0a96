package audit

import "time"

// Forward is one webhook forward attempt that passed target validation.
type Forward struct {
	ID           int64     `json:"id"`
	TargetHost   string    `json:"target_host"`
	TargetURL    string    `json:"target_url"`
	StatusCode   *int      `json:"status_code"` // nil when no response arrived
	Success      bool      `json:"success"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
