package catalog

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AllCategories is the Criteria.Category sentinel that disables category
// filtering.
const AllCategories = "all"

// UnknownCategory replaces an empty category set when the malformed-record
// policy is PolicyUnknown.
const UnknownCategory = "unknown"

// Summary is one entry of the list endpoint: a lightweight reference that
// needs a detail round-trip before it becomes an Item.
type Summary struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
}

// Item is one fully enriched catalog record. Items are created once during
// acquisition and never mutated afterwards.
type Item struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	ImageRef   string   `json:"image,omitempty"`
	Categories []string `json:"types"`
	Height     int      `json:"height"`
	Weight     int      `json:"weight"`
	Abilities  []string `json:"abilities"`
}

// Clone returns a copy of it that shares no slices with the original.
func (it Item) Clone() Item {
	it.Categories = slices.Clone(it.Categories)
	it.Abilities = slices.Clone(it.Abilities)
	return it
}

// CloneItems deep-copies a collection. The result is never nil.
func CloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// HasCategory reports whether c is one of the item's categories.
func (it Item) HasCategory(c string) bool {
	for _, have := range it.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// DisplayName returns the name with its first letter upper-cased.
func (it Item) DisplayName() string {
	return Capitalize(it.Name)
}

// Number formats the ID as a zero-padded dex number, e.g. "#001".
func (it Item) Number() string {
	return fmt.Sprintf("#%03d", it.ID)
}

// HeightMeters converts the raw height (decimetres) to metres.
func (it Item) HeightMeters() float64 {
	return float64(it.Height) / 10
}

// WeightKilograms converts the raw weight (hectograms) to kilograms.
func (it Item) WeightKilograms() float64 {
	return float64(it.Weight) / 10
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Criteria holds the two independent filter inputs of the derived view.
type Criteria struct {
	Search   string `json:"search"`
	Category string `json:"category"`
}

// Normalized returns c with an empty Category replaced by AllCategories.
func (c Criteria) Normalized() Criteria {
	if c.Category == "" {
		c.Category = AllCategories
	}
	return c
}

// Status is the session acquisition state.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "loading":
		*s = StatusLoading
	case "ready":
		*s = StatusReady
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// MalformedPolicy decides what happens to an enriched item that came back
// with no categories.
type MalformedPolicy string

const (
	// PolicyExclude drops the item from the collection.
	PolicyExclude MalformedPolicy = "exclude"
	// PolicyUnknown keeps the item under the UnknownCategory sentinel.
	PolicyUnknown MalformedPolicy = "unknown"
)

// ParseMalformedPolicy validates a policy name. Empty means PolicyExclude.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExclude:
		return PolicyExclude, nil
	case PolicyUnknown:
		return PolicyUnknown, nil
	default:
		return "", fmt.Errorf("invalid malformed-record policy %q (want %q or %q)", s, PolicyExclude, PolicyUnknown)
	}
}
