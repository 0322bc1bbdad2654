// Package monitor implements the appointment monitoring engine: the
// navigation state machine that walks a booking flow, the extraction
// adapter that canonicalizes slot markers, the retry policy around
// browser faults, and the scheduler that keeps monitoring sessions
// polling indefinitely.
package monitor

import (
	"time"
)

// AppointmentSlot is one discrete appointment opportunity at an office.
// Identity is (LocationID, Date, Time); a single extraction result never
// contains two slots with the same identity.
type AppointmentSlot struct {
	LocationID   string    `json:"locationId"`
	LocationName string    `json:"locationName"`
	Date         string    `json:"date"` // ISO date, YYYY-MM-DD
	Time         string    `json:"time"` // 24h clock, HH:MM
	RawLabel     string    `json:"rawLabel"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// Key returns the slot's identity tuple for deduplication.
func (s AppointmentSlot) Key() string {
	return s.LocationID + "|" + s.Date + "|" + s.Time
}

// OfficeCandidate is a selectable location discovered on the booking flow's
// office-list page. Candidates are produced fresh on every navigation pass
// and never persisted.
type OfficeCandidate struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
}

// DateRange bounds acceptable slot dates, inclusive. Empty bounds are open.
// Values are ISO dates, which order lexically.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// TimeWindow bounds acceptable slot times of day, inclusive. Empty bounds
// are open. Values are HH:MM, which order lexically.
type TimeWindow struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Preferences filter a session's extraction output before it is recorded.
type Preferences struct {
	DateRange  DateRange  `json:"dateRange,omitempty"`
	TimeWindow TimeWindow `json:"timeWindow,omitempty"`
}

// Matches reports whether the slot falls inside the preferred date range
// and time window.
func (p Preferences) Matches(slot AppointmentSlot) bool {
	if p.DateRange.From != "" && slot.Date < p.DateRange.From {
		return false
	}
	if p.DateRange.To != "" && slot.Date > p.DateRange.To {
		return false
	}
	if p.TimeWindow.Start != "" && slot.Time < p.TimeWindow.Start {
		return false
	}
	if p.TimeWindow.End != "" && slot.Time > p.TimeWindow.End {
		return false
	}
	return true
}

// SessionSpec is the caller-supplied definition of a monitoring session.
type SessionSpec struct {
	TargetURL     string      `json:"targetUrl"`
	LocationNames []string    `json:"locations"`
	Preferences   Preferences `json:"preferences,omitempty"`
}

// MonitoringSession is one monitoring configuration tracked across cycles.
// Sessions are owned exclusively by the scheduler's store; callers only
// ever see copies.
type MonitoringSession struct {
	ID            string
	TargetURL     string
	LocationNames []string
	Preferences   Preferences

	StartedAt     time.Time
	LastCheckedAt time.Time // last attempted check
	LastSuccessAt time.Time // last successful check
	LastResult    []AppointmentSlot
	LastError     string
	LastAttempts  []Attempt

	ConsecutiveFailures int
}

// SessionStatus is the read-model row exposed through the status surface.
type SessionStatus struct {
	SessionID           string      `json:"sessionId"`
	LocationsCount      int         `json:"locationsCount"`
	StartedAt           time.Time   `json:"startedAt"`
	LastCheckedAt       time.Time   `json:"lastCheckedAt"`
	LastSuccessAt       time.Time   `json:"lastSuccessAt"`
	SlotsFound          int         `json:"slotsFound"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	LastError           string      `json:"lastError,omitempty"`
	LastAttempts        []Attempt   `json:"lastAttempts,omitempty"`
}
