package model

// Event is an input to a list controller. The set of events is closed.
type Event interface {
	// EventName is a stable, low-cardinality name used for logging and metrics.
	EventName() string
	isEvent()
}

// ViewAppeared is sent when the screen is first shown.
type ViewAppeared struct{}

// Refresh discards everything fetched so far and starts again from page 1.
type Refresh struct{}

// LoadMore requests the next page.
type LoadMore struct{}

// Search narrows the visible list to names containing Text.
type Search struct {
	Text string
}

// CategoryTapped opens the subcategory options of the named category.
type CategoryTapped struct {
	Name string
}

// SubcategoryTapped activates Option as the subcategory filter.
type SubcategoryTapped struct {
	Option FilterOption
}

// ToggleCategoryChip flips the selection of the named chip.
type ToggleCategoryChip struct {
	Name string
}

func (ViewAppeared) EventName() string       { return "view_appeared" }
func (Refresh) EventName() string            { return "refresh" }
func (LoadMore) EventName() string           { return "load_more" }
func (Search) EventName() string             { return "search" }
func (CategoryTapped) EventName() string     { return "category_tapped" }
func (SubcategoryTapped) EventName() string  { return "subcategory_tapped" }
func (ToggleCategoryChip) EventName() string { return "toggle_category_chip" }

func (ViewAppeared) isEvent()       {}
func (Refresh) isEvent()            {}
func (LoadMore) isEvent()           {}
func (Search) isEvent()             {}
func (CategoryTapped) isEvent()     {}
func (SubcategoryTapped) isEvent()  {}
func (ToggleCategoryChip) isEvent() {}
