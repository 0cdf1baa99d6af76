package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"string value", `"VBAK"`, "VBAK"},
		{"integer value", `42`, "42"},
		{"float value", `0.85`, "0.85"},
		{"boolean value", `true`, "true"},
		{"null value", `null`, ""},
		{"empty raw", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(json.RawMessage(tt.raw))
			if got != tt.expected {
				t.Errorf("FlexibleStringValue(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestFlexibleFloat64Value(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback float64
		expected float64
	}{
		{"number", `0.85`, 0.5, 0.85},
		{"quoted number", `"0.7"`, 0.5, 0.7},
		{"null uses fallback", `null`, 0.5, 0.5},
		{"garbage uses fallback", `"high"`, 0.5, 0.5},
		{"empty uses fallback", ``, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleFloat64Value(json.RawMessage(tt.raw), tt.fallback)
			if got != tt.expected {
				t.Errorf("FlexibleFloat64Value(%q) = %v, want %v", tt.raw, got, tt.expected)
			}
		})
	}
}
