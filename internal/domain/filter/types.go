// Package filter describes column conditions passed from list endpoints to
// repositories. Repositories whitelist Field against their own columns.
package filter

import (
	"fmt"
	"strings"
)

// ComparisonType defines the supported comparisons.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	LessOrEqual    ComparisonType = "lte"
	Greater        ComparisonType = "gt"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	Contains       ComparisonType = "contains" // ILIKE %val%
	IsNull         ComparisonType = "null"
	IsNotNull      ComparisonType = "not_null"
)

// Item is one condition.
type Item struct {
	Field    string         `json:"field"` // snake_case column
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Parse reads "field:op:value" (value may be omitted for null checks).
// A value for "in" is split on commas.
func Parse(s string) (Item, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return Item{}, fmt.Errorf("filter %q: want field:operator[:value]", s)
	}

	item := Item{Field: parts[0], Operator: ComparisonType(parts[1])}
	switch item.Operator {
	case IsNull, IsNotNull:
		return item, nil
	case Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual, Contains:
	case InList:
		if len(parts) == 3 {
			item.Value = strings.Split(parts[2], ",")
			return item, nil
		}
	default:
		return Item{}, fmt.Errorf("filter %q: unknown operator %q", s, parts[1])
	}

	if len(parts) != 3 {
		return Item{}, fmt.Errorf("filter %q: value is required", s)
	}
	item.Value = parts[2]
	return item, nil
}
