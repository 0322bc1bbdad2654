package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Markers describes where the booking flow's semi-structured pages expose
// offices and slots. The target site's markup is an evolving external
// schema, so the whole set is loadable from a YAML file and the engine
// only ever sees this abstraction.
type Markers struct {
	// ContentReady is the selector whose visibility signals that the entry
	// page has finished rendering its dynamic content.
	ContentReady string `yaml:"content_ready"`

	// Offices describes office-candidate discovery on the entry page.
	Offices OfficeMarkers `yaml:"offices"`

	// Families is the ordered list of slot marker families. The engine
	// probes them in order and stops at the first family that yields
	// results, so site-version drift degrades to the next family instead
	// of an empty extraction.
	Families []SlotFamily `yaml:"families"`
}

// OfficeMarkers locate office candidates and the way back to the list.
type OfficeMarkers struct {
	// Item matches one selectable office entry.
	Item string `yaml:"item"`

	// IDAttr is the attribute on Item carrying the office's external id.
	// When the attribute is absent the display name doubles as the id.
	IDAttr string `yaml:"id_attr"`

	// BackAction optionally matches a control that returns to the office
	// list after slots were extracted. When empty or failing, the engine
	// re-enters the flow with a fresh entry load instead.
	BackAction string `yaml:"back_action"`
}

// SlotFamily is one tagged capability-probe for slot markers.
type SlotFamily struct {
	Name string `yaml:"name"`

	// Selector matches the rendered slot markers.
	Selector string `yaml:"selector"`

	// DateAttr / TimeAttr name the attributes carrying the slot's date and
	// time. When empty, both are parsed from the marker's visible label.
	DateAttr string `yaml:"date_attr"`
	TimeAttr string `yaml:"time_attr"`

	// DisabledAttr optionally names an attribute whose presence flags the
	// marker unavailable, in addition to the element's own disabled state.
	DisabledAttr string `yaml:"disabled_attr"`
}

// DefaultMarkers returns the marker set for the currently deployed version
// of the target site.
func DefaultMarkers() Markers {
	return Markers{
		ContentReady: ".appointment-flow",
		Offices: OfficeMarkers{
			Item:       ".office-list .office-item",
			IDAttr:     "data-office-id",
			BackAction: ".breadcrumb .back-to-offices",
		},
		Families: []SlotFamily{
			{
				Name:         "primary",
				Selector:     ".slot-picker button.slot",
				DateAttr:     "data-date",
				TimeAttr:     "data-time",
				DisabledAttr: "data-unavailable",
			},
			{
				Name:         "secondary",
				Selector:     ".DateTimeGrid .ServiceAppointmentDateTime",
				DisabledAttr: "aria-disabled",
			},
		},
	}
}

// LoadMarkers reads a marker definition file. Missing fields fall back to
// the defaults so a partial override file stays valid across releases.
func LoadMarkers(path string) (Markers, error) {
	m := DefaultMarkers()

	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read markers file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return DefaultMarkers(), fmt.Errorf("failed to parse markers file: %w", err)
	}
	if err := m.validate(); err != nil {
		return DefaultMarkers(), err
	}
	return m, nil
}

func (m Markers) validate() error {
	if m.Offices.Item == "" {
		return fmt.Errorf("markers: offices.item selector is required")
	}
	if len(m.Families) == 0 {
		return fmt.Errorf("markers: at least one slot family is required")
	}
	for _, f := range m.Families {
		if f.Name == "" || f.Selector == "" {
			return fmt.Errorf("markers: slot families need both name and selector")
		}
	}
	return nil
}
