/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a profile.
//
//	name: checkout-traffic
//	target: 25000
//	weights: [30, 20, 15, ...]
type Document struct {
	Name    string    `yaml:"name"`
	Target  float64   `yaml:"target,omitempty"`
	Weights []float64 `yaml:"weights"`
}

// Parse decodes and validates a YAML profile document.
// A zero target is allowed here; callers fall back to their configured target.
func Parse(data []byte) (Profile, float64, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Profile{}, 0, fmt.Errorf("decode profile: %w", err)
	}

	weights, err := FromSlice(doc.Weights)
	if err != nil {
		return Profile{}, 0, err
	}

	checkTarget := doc.Target
	if checkTarget == 0 {
		checkTarget = 1
	}
	if err := Validate(checkTarget, weights); err != nil {
		return Profile{}, 0, err
	}
	if weights.Sum() == 0 {
		return Profile{}, 0, fmt.Errorf("%w: profile %q has no weight in any hour", ErrInvalidProfile, doc.Name)
	}

	name := doc.Name
	if name == "" {
		name = "custom"
	}
	return Profile{Name: name, Weights: weights}, doc.Target, nil
}

// LoadFile reads a YAML profile from disk.
func LoadFile(path string) (Profile, float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, 0, fmt.Errorf("read profile %s: %w", path, err)
	}
	p, target, err := Parse(data)
	if err != nil {
		return Profile{}, 0, fmt.Errorf("load profile %s: %w", path, err)
	}
	return p, target, nil
}

// Encode renders a profile as a YAML document.
func Encode(p Profile, target float64) ([]byte, error) {
	return yaml.Marshal(Document{
		Name:    p.Name,
		Target:  target,
		Weights: p.Weights[:],
	})
}
