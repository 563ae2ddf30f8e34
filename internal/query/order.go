package query

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/ordering"
)

// ParseOrder parses an AIP-132 order_by string ("created_date desc, title")
// into an ORDER BY clause without the keyword. An empty string sorts by
// fallback ascending.
//
// The primary key is always appended as a final tiebreaker so that page
// boundaries are stable when the requested columns contain duplicates.
func (s *Schema) ParseOrder(orderBy, fallback, tiebreaker string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		orderBy = fallback
	}

	var ob ordering.OrderBy
	if err := ob.UnmarshalString(orderBy); err != nil {
		return "", fmt.Errorf("parse sort: %w", err)
	}
	if err := ob.ValidateForPaths(s.order...); err != nil {
		return "", fmt.Errorf("invalid sort: %w (fields: %s)", err, s.allowed())
	}

	parts := make([]string, 0, len(ob.Fields)+1)
	seen := make(map[string]bool, len(ob.Fields))
	for _, f := range ob.Fields {
		field, ok := s.fields[f.Path]
		if !ok {
			return "", fmt.Errorf("invalid sort: unknown field %q (fields: %s)", f.Path, s.allowed())
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, field.Column+" "+dir)
		seen[f.Path] = true
	}
	if tiebreaker != "" && !seen[tiebreaker] {
		if field, ok := s.fields[tiebreaker]; ok {
			parts = append(parts, field.Column+" ASC")
		}
	}
	return strings.Join(parts, ", "), nil
}
