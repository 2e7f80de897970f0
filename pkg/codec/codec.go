// Package codec is the single conversion boundary between the string-encoded
// wire format (properties, data ports, variable initial values) and typed Go
// values. Everything the exporter writes is a string; every typed read in the
// engine goes through here, so a future strongly-typed port format only has
// to change this package.
package codec

import "strconv"

// ParseInt parses a base-10 integer.
func ParseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// ParseFloat parses a decimal floating point number.
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// ParseBool parses a boolean. Both Go-style ("true") and exporter-style
// ("True") spellings are accepted.
func ParseBool(s string) (bool, error) {
	return strconv.ParseBool(s)
}

// IntOr parses s, returning fallback on empty input or parse failure.
func IntOr(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// FloatOr parses s, returning fallback on empty input or parse failure.
func FloatOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// BoolOr parses s, returning fallback on empty input or parse failure.
func BoolOr(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

// FormatInt renders an integer in the wire encoding.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// FormatFloat renders a float in the wire encoding. The shortest
// representation that round-trips is used.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatBool renders a boolean in the wire encoding.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}
