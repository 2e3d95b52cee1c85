package model

import "strings"

// Classification colors, one per attribute family.
const (
	StatusColor  = "#a6cccc"
	SpeciesColor = "#35c9dd"
	GenderColor  = "#02afc5"
)

// Status is the life status of a character.
type Status string

const (
	StatusAlive   Status = "Alive"
	StatusDead    Status = "Dead"
	StatusUnknown Status = "unknown"
)

// AllStatuses lists every Status in display order.
var AllStatuses = []Status{StatusAlive, StatusDead, StatusUnknown}

// Species is the species of a character.
type Species string

const (
	SpeciesAlien                Species = "Alien"
	SpeciesAnimal               Species = "Animal"
	SpeciesCronenberg           Species = "Cronenberg"
	SpeciesDisease              Species = "Disease"
	SpeciesHuman                Species = "Human"
	SpeciesHumanoid             Species = "Humanoid"
	SpeciesMythologicalCreature Species = "Mythological Creature"
	SpeciesPoopybutthole        Species = "Poopybutthole"
	SpeciesRobot                Species = "Robot"
	SpeciesUnknown              Species = "unknown"
)

// AllSpecies lists every Species in display order.
var AllSpecies = []Species{
	SpeciesAlien,
	SpeciesAnimal,
	SpeciesCronenberg,
	SpeciesDisease,
	SpeciesHuman,
	SpeciesHumanoid,
	SpeciesMythologicalCreature,
	SpeciesPoopybutthole,
	SpeciesRobot,
	SpeciesUnknown,
}

// Gender is the gender of a character.
type Gender string

const (
	GenderFemale     Gender = "Female"
	GenderGenderless Gender = "Genderless"
	GenderMale       Gender = "Male"
	GenderUnknown    Gender = "unknown"
)

// AllGenders lists every Gender in display order.
var AllGenders = []Gender{GenderFemale, GenderGenderless, GenderMale, GenderUnknown}

// ParseStatus resolves wire text to a Status. Matching ignores case; text that
// names no Status returns nil, meaning the attribute is absent.
func ParseStatus(s string) *Status {
	for _, v := range AllStatuses {
		if strings.EqualFold(string(v), s) {
			out := v
			return &out
		}
	}
	return nil
}

// ParseSpecies resolves wire text to a Species. See ParseStatus.
func ParseSpecies(s string) *Species {
	for _, v := range AllSpecies {
		if strings.EqualFold(string(v), s) {
			out := v
			return &out
		}
	}
	return nil
}

// ParseGender resolves wire text to a Gender. See ParseStatus.
func ParseGender(s string) *Gender {
	for _, v := range AllGenders {
		if strings.EqualFold(string(v), s) {
			out := v
			return &out
		}
	}
	return nil
}

// Character is a single fetched list item. Optional attributes are nil when the
// upstream API did not provide a recognizable value; the "unknown" enum members
// are real values and are distinct from absence.
type Character struct {
	ID      int      `json:"id"`
	Name    *string  `json:"name,omitempty"`
	Status  *Status  `json:"status,omitempty"`
	Species *Species `json:"species,omitempty"`
	Gender  *Gender  `json:"gender,omitempty"`
	Image   string   `json:"image,omitempty"`
}

// Equal reports whether two characters are the same item. Identity is by ID only.
func (c Character) Equal(other Character) bool {
	return c.ID == other.ID
}

// DisplayName returns the name, or "" when absent.
func (c Character) DisplayName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

// Attribute returns the display text of the attribute that the given category
// classifies. ok is false when the character has no value for it.
func (c Character) Attribute(cat FilterCategory) (text string, ok bool) {
	switch cat {
	case CategoryStatus:
		if c.Status != nil {
			return string(*c.Status), true
		}
	case CategorySpecies:
		if c.Species != nil {
			return string(*c.Species), true
		}
	case CategoryGender:
		if c.Gender != nil {
			return string(*c.Gender), true
		}
	}
	return "", false
}

// Page is the result of fetching one page of characters.
type Page struct {
	Items   []Character `json:"items"`
	HasMore bool        `json:"has_more"`
}
