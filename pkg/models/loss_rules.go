package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LossRules are the keyword tables used to classify legacy free-text downtime.
// Matching is a case-insensitive substring heuristic, not a precise classifier.
type LossRules struct {
	Availability []string `yaml:"availability"`
	Performance  []string `yaml:"performance"`
}

// DefaultLossRules returns the built-in keyword tables.
func DefaultLossRules() LossRules {
	return LossRules{
		Availability: []string{"breakdown", "setup", "waiting"},
		Performance:  []string{"minor", "slow", "speed"},
	}
}

// LoadLossRules reads keyword tables from a YAML file.
// Missing sections fall back to the defaults.
func LoadLossRules(path string) (LossRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LossRules{}, fmt.Errorf("failed to read loss rules file: %w", err)
	}
	return ParseLossRules(data)
}

// ParseLossRules parses YAML keyword tables.
func ParseLossRules(data []byte) (LossRules, error) {
	var rules LossRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return LossRules{}, fmt.Errorf("failed to parse loss rules: %w", err)
	}

	defaults := DefaultLossRules()
	rules.Availability = normalizeKeywords(rules.Availability)
	rules.Performance = normalizeKeywords(rules.Performance)
	if len(rules.Availability) == 0 {
		rules.Availability = defaults.Availability
	}
	if len(rules.Performance) == 0 {
		rules.Performance = defaults.Performance
	}
	return rules, nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
