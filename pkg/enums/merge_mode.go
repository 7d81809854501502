package enums

import (
	"fmt"
	"strings"
)

// MergeMode selects how a reconciled fact set reaches the destination table.
type MergeMode string

const (
	// MergeIncremental stages the fact set and applies an atomic upsert.
	MergeIncremental MergeMode = "incremental"
	// MergeFullReplace truncates the destination and loads the fact set.
	MergeFullReplace MergeMode = "full_replace"
)

var validMergeModes = []MergeMode{
	MergeIncremental,
	MergeFullReplace,
}

// IsValid reports whether the value is a known merge mode.
func (m MergeMode) IsValid() bool {
	for _, candidate := range validMergeModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsDestructive reports whether rows outside the fact set can disappear.
func (m MergeMode) IsDestructive() bool {
	return m == MergeFullReplace
}

// ParseMergeMode converts raw input into MergeMode. Empty input means incremental.
func ParseMergeMode(value string) (MergeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return MergeIncremental, nil
	}
	for _, candidate := range validMergeModes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid merge mode %q", value)
}
