package indices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// Category is a daily rainfall intensity class covering [Lower, next Lower).
type Category struct {
	Name  string
	Lower float64
}

// Categories is an ordered, contiguous partition of [0, inf).
type Categories []Category

// DefaultCategories are the IMD daily intensity classes in mm.
func DefaultCategories() Categories {
	return Categories{
		{Name: "none", Lower: 0},
		{Name: "light", Lower: 1},
		{Name: "moderate", Lower: 10},
		{Name: "heavy", Lower: 25},
		{Name: "very_heavy", Lower: 50},
		{Name: "extreme", Lower: 100},
	}
}

// Validate checks that the categories start at zero, increase strictly and
// carry unique names.
func (cs Categories) Validate() error {
	if len(cs) == 0 {
		return &domain.ConfigurationError{Setting: "category thresholds", Reason: "at least one category is required"}
	}
	if cs[0].Lower != 0 {
		return &domain.ConfigurationError{Setting: "category thresholds", Reason: fmt.Sprintf("first category %q must start at 0, not %v", cs[0].Name, cs[0].Lower)}
	}
	seen := make(map[string]bool, len(cs))
	for i, c := range cs {
		if c.Name == "" {
			return &domain.ConfigurationError{Setting: "category thresholds", Reason: fmt.Sprintf("category %d has no name", i)}
		}
		if seen[c.Name] {
			return &domain.ConfigurationError{Setting: "category thresholds", Reason: fmt.Sprintf("category %q appears twice", c.Name)}
		}
		seen[c.Name] = true
		if i > 0 && !(c.Lower > cs[i-1].Lower) {
			return &domain.ConfigurationError{
				Setting: "category thresholds",
				Reason:  fmt.Sprintf("%q lower bound %v must exceed %q lower bound %v", c.Name, c.Lower, cs[i-1].Name, cs[i-1].Lower),
			}
		}
	}
	return nil
}

// Classify returns the index of the category holding v. v must be non-negative.
func (cs Categories) Classify(v float64) int {
	idx := 0
	for i := 1; i < len(cs); i++ {
		if v < cs[i].Lower {
			break
		}
		idx = i
	}
	return idx
}

// Names lists category names in order.
func (cs Categories) Names() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func (cs Categories) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.Name + ":" + strconv.FormatFloat(c.Lower, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseCategories parses "name:lower,name:lower,..." and validates the result.
func ParseCategories(s string) (Categories, error) {
	var cs Categories
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lower, ok := strings.Cut(part, ":")
		if !ok {
			return nil, &domain.ConfigurationError{Setting: "category thresholds", Reason: fmt.Sprintf("%q is not name:lower", part)}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(lower), 64)
		if err != nil {
			return nil, &domain.ConfigurationError{Setting: "category thresholds", Reason: fmt.Sprintf("%q has a non-numeric bound", part)}
		}
		cs = append(cs, Category{Name: strings.TrimSpace(name), Lower: v})
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}
