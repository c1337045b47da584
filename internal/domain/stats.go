package domain

import "time"

// StatName enumerates the counters Stats tracks.
type StatName string

const (
	StatAPICalls   StatName = "api_calls"
	StatAssets     StatName = "assets"
	StatVariations StatName = "variations"
	StatLength     StatName = "length"
)

// StatScopes returns the four scope keys a single Inc touches: "all", the
// year, the year-month, and the year-month-day, matching the original's
// get_inc_keys. Callers prefix each with the account id (or omit the
// account for the service-wide rollup).
func StatScopes(t time.Time) []string {
	t = t.UTC()
	return []string{
		"all",
		t.Format("2006"),
		t.Format("2006-01"),
		t.Format("2006-01-02"),
	}
}

// EventType enumerates the event bus envelope's `type` field (§4.4).
type EventType string

const (
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskError     EventType = "task_error"
)

// TaskEvent is the small JSON envelope published on the event bus.
type TaskEvent struct {
	TaskID string    `json:"task_id"`
	Type   EventType `json:"type"`
	Reason string    `json:"reason,omitempty"`
}

// APILogOutcome classifies a terminal API response for the per-account log
// ring (§4.5, §12).
type APILogOutcome string

const (
	APILogSucceeded APILogOutcome = "succeeded"
	APILogFailed    APILogOutcome = "failed"
)

// APILogEntry is one ring-buffered record of a terminal API response.
type APILogEntry struct {
	ID         string    `json:"id"`
	CallTime   time.Time `json:"call_time"`
	Called     string    `json:"called"`
	IPAddress  string    `json:"ip_address"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
	StatusCode int       `json:"status_code"`
}
