/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package params

import (
	"encoding/json"
	"fmt"
)

// Extract extracts a required parameter from args with type safety.
// Returns an error if the parameter is missing or cannot be converted to T.
func Extract[T any](args map[string]any, name string) (T, error) {
	var zero T

	value, exists := args[name]
	if !exists || value == nil {
		return zero, fmt.Errorf("%s parameter is required", name)
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	if v, ok := convertNumeric[T](value); ok {
		return v, nil
	}
	return zero, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, value)
}

// ExtractOptional extracts an optional parameter with a default value.
// A missing or null parameter yields the default.
func ExtractOptional[T any](args map[string]any, name string, defaultValue T) (T, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return defaultValue, nil
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	if v, ok := convertNumeric[T](value); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, value)
}

// Has reports whether name is present and non-null.
func Has(args map[string]any, name string) bool {
	v, ok := args[name]
	return ok && v != nil
}

// Decode converts a structured parameter (an array or object) into T by
// round-tripping it through JSON. A missing parameter yields the zero value.
func Decode[T any](args map[string]any, name string) (T, error) {
	var out T
	value, exists := args[name]
	if !exists || value == nil {
		return out, nil
	}
	// Some providers deliver nested arguments as a JSON string.
	raw, isString := value.(string)
	if !isString {
		b, err := json.Marshal(value)
		if err != nil {
			return out, fmt.Errorf("%s parameter is not valid JSON: %w", name, err)
		}
		raw = string(b)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("%s parameter has the wrong shape: %w", name, err)
	}
	return out, nil
}

// convertNumeric handles JSON numbers arriving as float64 for integer parameters.
func convertNumeric[T any](value any) (T, bool) {
	var zero T
	f, ok := value.(float64)
	if !ok {
		return zero, false
	}
	switch any(zero).(type) {
	case int:
		return any(int(f)).(T), true
	case int32:
		return any(int32(f)).(T), true
	case int64:
		return any(int64(f)).(T), true
	}
	return zero, false
}
