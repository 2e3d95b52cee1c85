package model

import "fmt"

// StateKind tags which variant of State is active.
type StateKind int

const (
	// StateLoading means no data is available yet.
	StateLoading StateKind = iota
	// StateLoaded carries the visible list and the filter chips.
	StateLoaded
	// StateError carries a message describing the last fetch failure.
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StateKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "loading":
		*k = StateLoading
	case "loaded":
		*k = StateLoaded
	case "error":
		*k = StateError
	default:
		return fmt.Errorf("model: unknown state kind %q", string(b))
	}
	return nil
}

// State is an immutable snapshot published by a list controller. Only the
// fields belonging to Kind are meaningful: Items, Chips, ActiveCategory,
// ActiveSubcategory and Subcategories for StateLoaded, Message for StateError.
//
// Version increases by one with every published snapshot. Page is the next page
// the controller will request and HasMore reports whether the last fetched page
// said more exist.
type State struct {
	Kind              StateKind       `json:"kind"`
	Version           uint64          `json:"version"`
	Items             []Character     `json:"items,omitempty"`
	Chips             []FilterOption  `json:"chips,omitempty"`
	ActiveCategory    *FilterCategory `json:"active_category,omitempty"`
	ActiveSubcategory *FilterOption   `json:"active_subcategory,omitempty"`
	Subcategories     []FilterOption  `json:"subcategories,omitempty"`
	Message           string          `json:"message,omitempty"`
	Page              int             `json:"page"`
	HasMore           bool            `json:"has_more"`
}

// IsLoaded reports whether the snapshot is the Loaded variant.
func (s State) IsLoaded() bool { return s.Kind == StateLoaded }

// Chip returns the chip with the given text.
func (s State) Chip(text string) (FilterOption, bool) {
	for _, c := range s.Chips {
		if c.Text == text {
			return c, true
		}
	}
	return FilterOption{}, false
}
