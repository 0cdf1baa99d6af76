package services

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// BusinessRule is one curated join between two SAP table columns.
type BusinessRule struct {
	LeftTable   string `yaml:"left_table"`
	LeftColumn  string `yaml:"left_column"`
	RightTable  string `yaml:"right_table"`
	RightColumn string `yaml:"right_column"`
	JoinType    string `yaml:"join_type"`
	Description string `yaml:"description"`
}

// BusinessRules is the curated relationship knowledge shipped with the engine.
type BusinessRules struct {
	Rules          []BusinessRule `yaml:"rules"`
	IgnoredColumns []string       `yaml:"ignored_columns"`
}

// IsIgnoredColumn reports whether the column carries no business meaning for
// relationship inference (the SAP client column MANDT and friends).
func (b *BusinessRules) IsIgnoredColumn(name string) bool {
	for _, c := range b.IgnoredColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// LoadBusinessRules parses the embedded rules file.
func LoadBusinessRules() (*BusinessRules, error) {
	var rules BusinessRules
	if err := yaml.Unmarshal(rulesYAML, &rules); err != nil {
		return nil, fmt.Errorf("parse business rules: %w", err)
	}

	for i, r := range rules.Rules {
		if r.LeftTable == "" || r.LeftColumn == "" || r.RightTable == "" || r.RightColumn == "" {
			return nil, fmt.Errorf("business rule %d is incomplete", i)
		}
		if r.JoinType == "" {
			rules.Rules[i].JoinType = "INNER"
		}
	}

	return &rules, nil
}
