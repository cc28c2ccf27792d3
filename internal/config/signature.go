package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the standalone audio-signature rules document. Operators ship
// this file separately from the main config so filter policy can be reviewed
// and rolled out on its own.
type Rules struct {
	PayloadTypes     []int  `yaml:"payload_types"`
	PortMin          uint16 `yaml:"port_min"`
	PortMax          uint16 `yaml:"port_max"`
	RequireSignaling bool   `yaml:"require_signaling"`
}

// LoadRules reads a YAML signature rules file.
func LoadRules(path string) (*Rules, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("signature rules file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature rules %s: %w", path, err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse signature rules %s: %w", path, err)
	}
	return &rules, nil
}

// applyTo overrides the inline signature config with the rules file values.
func (r *Rules) applyTo(sig *SignatureConfig) {
	if len(r.PayloadTypes) > 0 {
		sig.PayloadTypes = r.PayloadTypes
	}
	if r.PortMin != 0 {
		sig.PortMin = r.PortMin
	}
	if r.PortMax != 0 {
		sig.PortMax = r.PortMax
	}
	sig.RequireSignaling = r.RequireSignaling
}
