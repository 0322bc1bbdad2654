package monitor

import (
	"strings"
	"time"
)

// RawSlot is a slot marker as read off the page, before canonicalization.
type RawSlot struct {
	Date  string
	Time  string
	Label string
}

// dateLayouts are the date formats observed across versions of the target
// site, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Monday, January 2, 2006",
}

// timeLayouts are the time-of-day formats observed on slot markers.
var timeLayouts = []string{
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3:04 pm",
}

// NormalizeSlots converts raw markers from one office into canonical,
// deduplicated AppointmentSlot records. Markers whose date or time cannot
// be recognized are dropped rather than recorded with a garbage identity.
// Dedup holds even when two marker families matched overlapping elements:
// callers may concatenate normalized output and re-dedup with DedupSlots.
func NormalizeSlots(raw []RawSlot, office OfficeCandidate, discoveredAt time.Time) []AppointmentSlot {
	slots := make([]AppointmentSlot, 0, len(raw))
	for _, r := range raw {
		date, time24, ok := canonicalDateTime(r)
		if !ok {
			continue
		}
		slots = append(slots, AppointmentSlot{
			LocationID:   office.ExternalID,
			LocationName: office.DisplayName,
			Date:         date,
			Time:         time24,
			RawLabel:     strings.TrimSpace(r.Label),
			DiscoveredAt: discoveredAt,
		})
	}
	return DedupSlots(slots)
}

// DedupSlots removes duplicate identities, keeping first occurrence order.
func DedupSlots(slots []AppointmentSlot) []AppointmentSlot {
	seen := make(map[string]bool, len(slots))
	out := slots[:0:len(slots)]
	for _, s := range slots {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	return out
}

// ApplyPreferences filters slots to the session's date range and time
// window, preserving order.
func ApplyPreferences(slots []AppointmentSlot, prefs Preferences) []AppointmentSlot {
	out := make([]AppointmentSlot, 0, len(slots))
	for _, s := range slots {
		if prefs.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// canonicalDateTime resolves a raw marker to (ISO date, HH:MM). Explicit
// date/time fields win; otherwise the label is parsed as "<date> at <time>"
// or "<date> <time>" with the known layouts.
func canonicalDateTime(r RawSlot) (string, string, bool) {
	date := parseDate(r.Date)
	time24 := parseTime(r.Time)

	if date == "" || time24 == "" {
		d, t := splitLabel(r.Label)
		if date == "" {
			date = parseDate(d)
		}
		if time24 == "" {
			time24 = parseTime(t)
		}
	}
	if date == "" || time24 == "" {
		return "", "", false
	}
	return date, time24, true
}

func parseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func parseTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04")
		}
	}
	return ""
}

// splitLabel splits a combined marker label into date and time parts. The
// time part is assumed to be the trailing token(s) containing a colon.
func splitLabel(label string) (string, string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ""
	}
	if i := strings.Index(label, " at "); i >= 0 {
		return strings.TrimSpace(label[:i]), strings.TrimSpace(label[i+4:])
	}

	fields := strings.Fields(label)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.Contains(fields[i], ":") {
			return strings.Join(fields[:i], " "), strings.Join(fields[i:], " ")
		}
	}
	return label, ""
}
