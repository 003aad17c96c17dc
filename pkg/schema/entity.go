package schema

import "strings"

// EntityType identifies a kind of entity held by the cache.
// The set of values is closed: every EntityType used with a Registry must be
// declared by one of its definitions.
type EntityType string

// Entity types of the feedback-insights product
const (
	User         EntityType = "user"
	Company      EntityType = "company"
	Membership   EntityType = "membership"
	Integration  EntityType = "integration"
	Product      EntityType = "product"
	Research     EntityType = "research"
	ResearchStep EntityType = "researchStep"
	PainPoint    EntityType = "painPoint"
	Idea         EntityType = "idea"
	Comment      EntityType = "comment"
	Source       EntityType = "source"
	Feature      EntityType = "feature"
)

// DefaultIDField is the identity key used when a definition does not name one
const DefaultIDField = "id"

// String returns the singular model name
func (t EntityType) String() string {
	return string(t)
}

// Plural returns the table name for an entity type.
//
// Basic English rules only, applied to the camelCase name:
//   - "company" -> "companies", but "day" -> "days"
//   - "research" -> "researches", "box" -> "boxes"
//   - "painPoint" -> "painPoints"
//
// Irregular nouns ("person" -> "people") are not handled; pin the table in
// the Definition instead.
func Plural(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)

	switch {
	case len(lower) > 1 && strings.HasSuffix(lower, "y") && !isVowel(lower[len(lower)-2]):
		return name[:len(name)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"), strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return name + "es"
	default:
		return name + "s"
	}
}

func isVowel(b byte) bool {
	return b == 'a' || b == 'e' || b == 'i' || b == 'o' || b == 'u'
}
