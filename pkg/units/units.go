// Package units parses the bandwidth/latency/size strings accepted in a
// Problem YAML file, spec.md §6:
//
//	bandwidth: <num>[k|m|g|t|p|e|z]?(b|B)ps    (lowercase b = bits, B = bytes, SI-binary 1024)
//	latency:   <num>[m|n|p]?s                   (seconds, milli/nano/pico)
//	size:      analogous to bandwidth without "ps"
package units

import (
	"fmt"
	"strconv"
	"strings"
)

var bandwidthPrefixes = map[byte]float64{
	0:   1,
	'k': 1024,
	'm': 1024 * 1024,
	'g': 1024 * 1024 * 1024,
	't': 1024 * 1024 * 1024 * 1024,
	'p': 1024 * 1024 * 1024 * 1024 * 1024,
	'e': 1024 * 1024 * 1024 * 1024 * 1024 * 1024,
	'z': 1024 * 1024 * 1024 * 1024 * 1024 * 1024 * 1024,
}

// ParseBandwidth parses a bandwidth string into bytes/sec. Accepts a bare
// number (already bytes/sec) for convenience.
func ParseBandwidth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty bandwidth string")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	lower := strings.ToLower(s)
	if !strings.HasSuffix(lower, "ps") {
		return 0, fmt.Errorf("invalid bandwidth string %q: expected a \"...bps\" or \"...Bps\" suffix", s)
	}
	body := s[:len(s)-2] // keep original case to tell b from B
	if body == "" {
		return 0, fmt.Errorf("invalid bandwidth string %q", s)
	}
	unitByte := body[len(body)-1]
	var bits bool
	switch unitByte {
	case 'b':
		bits = true
	case 'B':
		bits = false
	default:
		return 0, fmt.Errorf("invalid bandwidth string %q: unit must be 'b' (bits) or 'B' (bytes)", s)
	}
	numPart := body[:len(body)-1]
	var prefix byte
	if n := len(numPart); n > 0 {
		last := numPart[n-1]
		lastLower := last | 0x20
		if _, ok := bandwidthPrefixes[lastLower]; ok && (last < '0' || last > '9') {
			prefix = lastLower
			numPart = numPart[:n-1]
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth string %q: %w", s, err)
	}
	value *= bandwidthPrefixes[prefix]
	if bits {
		value /= 8
	}
	return value, nil
}

var latencyPrefixes = map[byte]float64{
	0:   1,
	'm': 1e-3,
	'n': 1e-9,
	'p': 1e-12,
}

// ParseLatency parses a latency string into seconds. Accepts a bare number
// (already seconds) for convenience.
func ParseLatency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty latency string")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if !strings.HasSuffix(s, "s") {
		return 0, fmt.Errorf("invalid latency string %q: expected a \"...s\" suffix", s)
	}
	body := s[:len(s)-1]
	if body == "" {
		return 0, fmt.Errorf("invalid latency string %q", s)
	}
	var prefix byte
	numPart := body
	if n := len(body); n > 0 {
		last := body[n-1] | 0x20
		if _, ok := latencyPrefixes[last]; ok && (body[n-1] < '0' || body[n-1] > '9') {
			prefix = last
			numPart = body[:n-1]
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid latency string %q: %w", s, err)
	}
	return value * latencyPrefixes[prefix], nil
}

// ParseSize parses a size string into bytes, analogous to ParseBandwidth
// but without the trailing "ps" (e.g. "10MB", "512kb", or a bare number).
func ParseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int(v), nil
	}
	if len(s) < 1 {
		return 0, fmt.Errorf("invalid size string %q", s)
	}
	unitByte := s[len(s)-1]
	var bits bool
	switch unitByte {
	case 'b':
		bits = true
	case 'B':
		bits = false
	default:
		return 0, fmt.Errorf("invalid size string %q: unit must be 'b' (bits) or 'B' (bytes)", s)
	}
	numPart := s[:len(s)-1]
	var prefix byte
	if n := len(numPart); n > 0 {
		last := numPart[n-1]
		lastLower := last | 0x20
		if _, ok := bandwidthPrefixes[lastLower]; ok && (last < '0' || last > '9') {
			prefix = lastLower
			numPart = numPart[:n-1]
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size string %q: %w", s, err)
	}
	value *= bandwidthPrefixes[prefix]
	if bits {
		value /= 8
	}
	return int(value), nil
}
