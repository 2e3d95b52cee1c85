// Package filter implements the client-side projections applied to fetched
// characters: name search, subcategory matching and the option sets offered
// for each filter category.
package filter

import (
	"strings"

	"github.com/pitabwire/charlist/model"
)

// ByName returns the characters whose name contains text, ignoring case.
// An empty text returns items unchanged. Characters without a name never
// match a non-empty text.
func ByName(items []model.Character, text string) []model.Character {
	if text == "" {
		return items
	}
	needle := strings.ToLower(text)
	out := make([]model.Character, 0, len(items))
	for _, c := range items {
		if c.Name == nil {
			continue
		}
		if strings.Contains(strings.ToLower(*c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}

// BySubcategory returns the characters whose attribute for the option's
// category starts with the option text, ignoring case and surrounding space.
// Characters with no value for that attribute never match. An option without
// a category leaves items unchanged.
func BySubcategory(items []model.Character, option model.FilterOption) []model.Character {
	if option.Category == nil {
		return items
	}
	cat := *option.Category
	prefix := strings.ToLower(strings.TrimSpace(option.Text))

	out := make([]model.Character, 0, len(items))
	for _, c := range items {
		text, ok := c.Attribute(cat)
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.ToLower(text), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// OptionsFor returns one unselected option per value of the category's enum,
// in enum order, each owned by cat.
func OptionsFor(cat model.FilterCategory) []model.FilterOption {
	var values []string
	switch cat {
	case model.CategoryStatus:
		for _, v := range model.AllStatuses {
			values = append(values, string(v))
		}
	case model.CategorySpecies:
		for _, v := range model.AllSpecies {
			values = append(values, string(v))
		}
	case model.CategoryGender:
		for _, v := range model.AllGenders {
			values = append(values, string(v))
		}
	default:
		return nil
	}

	color := cat.Color()
	opts := make([]model.FilterOption, len(values))
	for i, v := range values {
		opts[i] = model.FilterOption{
			Text:     v,
			Color:    color,
			Category: model.CategoryPtr(cat),
		}
	}
	return opts
}

// Chips returns the three top-level category chips, all unselected.
func Chips() []model.FilterOption {
	chips := make([]model.FilterOption, len(model.AllCategories))
	for i, c := range model.AllCategories {
		chips[i] = model.FilterOption{
			Text:     string(c),
			Color:    c.Color(),
			Category: model.CategoryPtr(c),
		}
	}
	return chips
}

// SelectOnly returns a copy of chips where only the chip for cat is selected.
func SelectOnly(chips []model.FilterOption, cat model.FilterCategory) []model.FilterOption {
	out := make([]model.FilterOption, len(chips))
	for i, c := range chips {
		c.Selected = c.Text == string(cat)
		out[i] = c
	}
	return out
}

// DeselectAll returns a copy of chips with every selection cleared.
func DeselectAll(chips []model.FilterOption) []model.FilterOption {
	out := make([]model.FilterOption, len(chips))
	for i, c := range chips {
		c.Selected = false
		out[i] = c
	}
	return out
}
