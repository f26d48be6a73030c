// Package mapping validates extracted fields against a tenant's declarative
// rule set and translates them to CRM field names.
package mapping

import (
	"fmt"
	"math"
	"regexp"

	"github.com/mbreslin/voicesync/pkg/models"
)

// Result reports the outcome of validating one set of extracted fields.
// Warnings never block progress; OK is false only when Errors is non-empty.
type Result struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Validate checks fields against rules. Missing required values and type
// mismatches are errors; a pattern mismatch is only a warning, because
// extraction from free speech is noisy and regex is a hint, not a gate.
func Validate(fields map[string]any, rules map[string]models.ValidationRule) Result {
	var errs, warnings []string

	for field, rule := range rules {
		value, present := fields[field]

		if rule.Required && isEmpty(value) {
			errs = append(errs, fmt.Sprintf("Required field '%s' is missing", field))
			continue
		}

		if !present || value == nil {
			continue
		}

		if rule.Type != "" && !typeMatches(value, rule.Type) {
			errs = append(errs, fmt.Sprintf("Field '%s' has invalid type. Expected %s", field, rule.Type))
		}

		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Field '%s' has an invalid pattern rule", field))
			} else if !re.MatchString(fmt.Sprintf("%v", value)) {
				warnings = append(warnings, fmt.Sprintf("Field '%s' doesn't match expected pattern", field))
			}
		}
	}

	return Result{
		OK:       len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// MapFields translates extracted field names to CRM field names. Keys
// without a mapping entry are dropped, never forwarded to the remote
// system.
func MapFields(extracted map[string]any, fieldMappings map[string]string) map[string]any {
	out := make(map[string]any, len(extracted))
	for key, value := range extracted {
		if dest, ok := fieldMappings[key]; ok {
			out[dest] = value
		}
	}
	return out
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

// typeMatches checks a value's runtime type against a declared rule type.
// No coercion, with one accommodation: JSON decoding yields float64 for
// every number, so a whole float64 satisfies "integer".
func typeMatches(value any, declared string) bool {
	switch declared {
	case "string", "date":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		default:
			return false
		}
	case "float":
		switch value.(type) {
		case float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		// Unknown declared type: skip the check rather than reject data.
		return true
	}
}
