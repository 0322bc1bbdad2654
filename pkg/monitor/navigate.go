package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/apptwatch/apptwatch/pkg/automation"
)

// EngineConfig tunes the navigation state machine.
type EngineConfig struct {
	// FallbackCandidates bounds the "first N offices" fallback used when no
	// requested location matches. It is a cost-control bound, not a match.
	FallbackCandidates int

	// StepTimeout bounds individual navigations and element waits.
	StepTimeout time.Duration

	// SelectTimeout bounds the post-selection race between a page
	// navigation and the appearance of a slot marker.
	SelectTimeout time.Duration

	// NavigationsPerMinute paces page-level actions so the polling loop
	// does not hammer the target site.
	NavigationsPerMinute int
}

// DefaultEngineConfig returns the tuning used in production.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FallbackCandidates:   3,
		StepTimeout:          30 * time.Second,
		SelectTimeout:        15 * time.Second,
		NavigationsPerMinute: 30,
	}
}

// Engine drives one leased page through the booking flow:
//
//	ENTRY -> OFFICE_LIST -> OFFICE_SELECTED -> SLOTS_EXTRACTED -> (next office | DONE)
//
// for each requested location, and returns the concatenated slots of the
// whole pass.
type Engine struct {
	markers Markers
	cfg     EngineConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewEngine creates an engine over the given marker set.
func NewEngine(markers Markers, cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.FallbackCandidates <= 0 {
		cfg.FallbackCandidates = DefaultEngineConfig().FallbackCandidates
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultEngineConfig().StepTimeout
	}
	if cfg.SelectTimeout <= 0 {
		cfg.SelectTimeout = DefaultEngineConfig().SelectTimeout
	}
	perMinute := cfg.NavigationsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultEngineConfig().NavigationsPerMinute
	}
	return &Engine{
		markers: markers,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		log:     log.With().Str("component", "navigator").Logger(),
	}
}

// Process runs one full pass for the session spec on the leased page.
// Zero matched offices or zero slots is an empty result, not an error.
func (e *Engine) Process(ctx context.Context, page automation.Page, spec SessionSpec) ([]AppointmentSlot, error) {
	candidates, err := e.enterFlow(ctx, page, spec.TargetURL)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		e.log.Warn().Str("url", spec.TargetURL).Msg("no office candidates discovered")
		return []AppointmentSlot{}, nil
	}

	offices := e.matchOffices(candidates, spec.LocationNames)
	e.log.Debug().
		Int("candidates", len(candidates)).
		Int("matched", len(offices)).
		Msg("office list resolved")

	all := make([]AppointmentSlot, 0)
	for i, office := range offices {
		if i > 0 {
			if err := e.returnToOfficeList(ctx, page, spec.TargetURL); err != nil {
				return nil, err
			}
		}

		if err := e.selectOffice(ctx, page, office); err != nil {
			return nil, err
		}

		raw, family, err := e.extractSlots(page)
		if err != nil {
			return nil, err
		}
		slots := NormalizeSlots(raw, office, time.Now())
		e.log.Info().
			Str("office", office.DisplayName).
			Str("family", family).
			Int("slots", len(slots)).
			Msg("office processed")
		all = append(all, slots...)
	}

	return DedupSlots(all), nil
}

// enterFlow loads the entry URL, waits for the content-ready signal, and
// discovers the office candidates rendered on the list page.
func (e *Engine) enterFlow(ctx context.Context, page automation.Page, url string) ([]OfficeCandidate, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := page.Navigate(url, e.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if e.markers.ContentReady != "" {
		if err := page.WaitVisible(e.markers.ContentReady, e.cfg.StepTimeout); err != nil {
			return nil, err
		}
	}
	return e.discoverOffices(page)
}

func (e *Engine) discoverOffices(page automation.Page) ([]OfficeCandidate, error) {
	items, err := page.Elements(e.markers.Offices.Item)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	candidates := make([]OfficeCandidate, 0, len(items))
	for _, item := range items {
		name, err := item.Text()
		if err != nil || name == "" {
			continue
		}
		id := name
		if e.markers.Offices.IDAttr != "" {
			if attr, err := item.Attribute(e.markers.Offices.IDAttr); err == nil && attr != "" {
				id = attr
			}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, OfficeCandidate{ExternalID: id, DisplayName: name})
	}
	return candidates, nil
}

// matchOffices selects the candidates to process, in candidate-list order.
// Requested names match case-insensitively as bidirectional substrings, or
// as glob patterns when they contain glob metacharacters. When nothing
// matches (or nothing was requested) the first FallbackCandidates entries
// are processed instead; an empty pass would hide a site-side rename.
func (e *Engine) matchOffices(candidates []OfficeCandidate, requested []string) []OfficeCandidate {
	matched := make([]OfficeCandidate, 0, len(requested))
	for _, c := range candidates {
		for _, want := range requested {
			if matchLocationName(c.DisplayName, want) {
				matched = append(matched, c)
				break
			}
		}
	}
	if len(matched) > 0 {
		return matched
	}

	n := e.cfg.FallbackCandidates
	if n > len(candidates) {
		n = len(candidates)
	}
	if len(requested) > 0 {
		e.log.Warn().
			Strs("requested", requested).
			Int("fallback", n).
			Msg("no requested location matched, falling back to first candidates")
	}
	return candidates[:n:n]
}

func matchLocationName(candidate, requested string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	requested = strings.ToLower(strings.TrimSpace(requested))
	if candidate == "" || requested == "" {
		return false
	}
	if strings.ContainsAny(requested, "*?[") {
		g, err := glob.Compile(requested)
		if err != nil {
			return false
		}
		return g.Match(candidate)
	}
	return strings.Contains(candidate, requested) || strings.Contains(requested, candidate)
}

// selectOffice triggers the candidate's selection action, then races a
// bounded wait on either a page navigation or the appearance of a slot
// marker. The site sometimes swaps content in place without a navigation
// event, so neither signal resolving within the bound is not an error:
// extraction proceeds best-effort.
func (e *Engine) selectOffice(ctx context.Context, page automation.Page, office OfficeCandidate) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	items, err := page.Elements(e.markers.Offices.Item)
	if err != nil {
		return err
	}
	target, err := e.findOfficeElement(items, office)
	if err != nil {
		return err
	}

	before := page.URL()
	if err := target.Click(); err != nil {
		return err
	}

	waitErr := page.WaitFor(func() (bool, error) {
		if page.URL() != before {
			return true, nil
		}
		// Element lookups during the transition fail transiently while the
		// page rebuilds; treat that as "not yet".
		return e.anySlotMarkerPresent(page), nil
	}, e.cfg.SelectTimeout)
	if waitErr != nil {
		e.log.Debug().
			Str("office", office.DisplayName).
			Msg("no navigation or slot marker within bound, proceeding")
	}
	return nil
}

func (e *Engine) findOfficeElement(items []automation.Element, office OfficeCandidate) (automation.Element, error) {
	for _, item := range items {
		if e.markers.Offices.IDAttr != "" {
			if attr, err := item.Attribute(e.markers.Offices.IDAttr); err == nil && attr == office.ExternalID {
				return item, nil
			}
		}
		if name, err := item.Text(); err == nil && name == office.DisplayName {
			return item, nil
		}
	}
	return nil, fmt.Errorf("office %q disappeared from the list", office.DisplayName)
}

func (e *Engine) anySlotMarkerPresent(page automation.Page) bool {
	for _, family := range e.markers.Families {
		elements, err := page.Elements(family.Selector)
		if err == nil && len(elements) > 0 {
			return true
		}
	}
	return false
}

// extractSlots reads the rendered slot markers, probing the marker
// families in order and stopping at the first family that yields results.
// Markers flagged disabled or unavailable are excluded. Returns the family
// that produced the markers for observability.
func (e *Engine) extractSlots(page automation.Page) ([]RawSlot, string, error) {
	for _, family := range e.markers.Families {
		elements, err := page.Elements(family.Selector)
		if err != nil {
			return nil, "", err
		}

		raw := make([]RawSlot, 0, len(elements))
		for _, el := range elements {
			if e.markerDisabled(el, family) {
				continue
			}
			label, err := el.Text()
			if err != nil {
				continue
			}
			slot := RawSlot{Label: label}
			if family.DateAttr != "" {
				slot.Date, _ = el.Attribute(family.DateAttr)
			}
			if family.TimeAttr != "" {
				slot.Time, _ = el.Attribute(family.TimeAttr)
			}
			raw = append(raw, slot)
		}

		if len(raw) > 0 {
			return raw, family.Name, nil
		}
	}
	return nil, "", nil
}

func (e *Engine) markerDisabled(el automation.Element, family SlotFamily) bool {
	if el.Disabled() {
		return true
	}
	if family.DisabledAttr == "" {
		return false
	}
	attr, err := el.Attribute(family.DisabledAttr)
	if err != nil {
		return false
	}
	return attr != "" && attr != "false"
}

// returnToOfficeList navigates back for the next candidate. A configured
// back action is tried first; when it is missing or fails, the engine
// re-enters at ENTRY with a fresh load rather than abandoning the pass.
func (e *Engine) returnToOfficeList(ctx context.Context, page automation.Page, entryURL string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	if back := e.markers.Offices.BackAction; back != "" {
		if err := page.Click(back, e.cfg.StepTimeout); err == nil {
			if e.markers.ContentReady == "" {
				return nil
			}
			if err := page.WaitVisible(e.markers.ContentReady, e.cfg.StepTimeout); err == nil {
				return nil
			}
		}
		e.log.Debug().Msg("back action failed, re-entering flow")
	}

	if err := page.Navigate(entryURL, e.cfg.StepTimeout); err != nil {
		return err
	}
	if e.markers.ContentReady != "" {
		return page.WaitVisible(e.markers.ContentReady, e.cfg.StepTimeout)
	}
	return nil
}
