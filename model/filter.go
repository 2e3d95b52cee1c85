package model

// FilterCategory is one of the three classification families a list can be
// narrowed by.
type FilterCategory string

const (
	CategoryGender  FilterCategory = "Gender"
	CategorySpecies FilterCategory = "Species"
	CategoryStatus  FilterCategory = "Status"
)

// AllCategories lists the categories in chip display order.
var AllCategories = []FilterCategory{CategoryGender, CategorySpecies, CategoryStatus}

// ParseFilterCategory resolves a category by its exact display name.
func ParseFilterCategory(name string) (FilterCategory, bool) {
	for _, c := range AllCategories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Color returns the fixed display color of the category.
func (c FilterCategory) Color() string {
	switch c {
	case CategoryGender:
		return GenderColor
	case CategorySpecies:
		return SpeciesColor
	case CategoryStatus:
		return StatusColor
	}
	return ""
}

// FilterOption is a selectable tag. Top-level chips carry their own category;
// subcategory options carry the category that owns them.
type FilterOption struct {
	Text     string          `json:"text"`
	Color    string          `json:"color"`
	Category *FilterCategory `json:"category,omitempty"`
	Selected bool            `json:"selected"`
}

// CategoryPtr returns a pointer to a copy of c.
func CategoryPtr(c FilterCategory) *FilterCategory {
	return &c
}
