package tui

import (
	"fmt"
	"strings"

	"github.com/pitabwire/charlist/model"
)

const title = "Characters"

// View implements tea.Model
func (m Model) View() string {
	switch m.state.Kind {
	case model.StateLoading:
		return RenderLoading(m.spinner.View())
	case model.StateError:
		return RenderError(m.state.Message)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	if m.searching || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n\n")
	}

	b.WriteString(RenderChips(m.state.Chips, m.chipCursor))
	b.WriteString("\n\n")

	b.WriteString(RenderItems(m.state.Items, m.cursor, m.listHeight()))

	if m.pickerOpen() {
		b.WriteString("\n")
		b.WriteString(RenderPicker(m.state.Subcategories, m.pickerCursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(DimmedStyle.Render(statusLine(m.state)))
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(keys.ShortHelp()))

	return b.String()
}

// listHeight is the number of rows available to the list.
func (m Model) listHeight() int {
	const chrome = 10
	if m.height <= chrome {
		return 15
	}
	return m.height - chrome
}

// RenderLoading renders the screen shown before any data arrives.
func RenderLoading(spinnerView string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(SpinnerStyle.Render(spinnerView))
	b.WriteString(" Loading characters...")
	return b.String()
}

// RenderError renders the last fetch failure.
func RenderError(message string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(ErrorStyle.Render("Error: "))
	b.WriteString(message)
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render("r: Retry  q: Quit"))
	return b.String()
}

// RenderChips renders the category chips on one line.
func RenderChips(chips []model.FilterOption, focus int) string {
	parts := make([]string, 0, len(chips))
	for i, c := range chips {
		parts = append(parts, chipStyle(c, i == focus).Render(c.Text))
	}
	return strings.Join(parts, " ")
}

// RenderItems renders a window of items that keeps the cursor visible.
func RenderItems(items []model.Character, cursor, height int) string {
	if len(items) == 0 {
		return DimmedStyle.Render("No characters match.") + "\n"
	}

	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(start+height, len(items))

	var b strings.Builder
	for i := start; i < end; i++ {
		c := items[i]
		name := c.DisplayName()
		if name == "" {
			name = fmt.Sprintf("#%d", c.ID)
		}
		if i == cursor {
			b.WriteString(Cursor() + SelectedStyle.Render(name))
		} else {
			b.WriteString(NoCursor() + ItemStyle.Render(name))
		}
		if attrs := renderAttributes(c); attrs != "" {
			b.WriteString("  ")
			b.WriteString(attrs)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderAttributes(c model.Character) string {
	var parts []string
	for _, cat := range []model.FilterCategory{model.CategoryStatus, model.CategorySpecies, model.CategoryGender} {
		if text, ok := c.Attribute(cat); ok {
			parts = append(parts, attributeStyle(cat).Render(text))
		}
	}
	return strings.Join(parts, DimmedStyle.Render(" · "))
}

// RenderPicker renders the subcategory options of the tapped category.
func RenderPicker(options []model.FilterOption, cursor int) string {
	var b strings.Builder
	for i, o := range options {
		if i > 0 {
			b.WriteString("\n")
		}
		if i == cursor {
			b.WriteString(Cursor())
		} else {
			b.WriteString(NoCursor())
		}
		b.WriteString(chipStyle(o, false).Render(o.Text))
	}
	return PickerStyle.Render(b.String())
}

func statusLine(s model.State) string {
	line := fmt.Sprintf("%d characters", len(s.Items))
	if s.ActiveSubcategory != nil {
		line += " · filtered by " + s.ActiveSubcategory.Text
	}
	if s.HasMore {
		line += " · more below"
	}
	return line
}

// Cursor returns the selection cursor.
func Cursor() string {
	return SelectedStyle.Render("› ")
}

// NoCursor returns spacing for non-selected items.
func NoCursor() string {
	return "  "
}
