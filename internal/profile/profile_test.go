/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package profile

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestInverseRatesUniform(t *testing.T) {
	rates, err := InverseRates(10000, Uniform().Weights)
	if err != nil {
		t.Fatalf("inverse rates: %v", err)
	}

	// 10000 events spread over 24 hours: one every 8640 ms.
	for h, r := range rates {
		if math.Abs(r-8640) > 1e-9 {
			t.Fatalf("rates[%d] = %v, want 8640", h, r)
		}
	}
	if got := rates.ExpectedTotal(); math.Abs(got-10000) > 1e-6 {
		t.Fatalf("expected total = %v, want 10000", got)
	}
}

func TestInverseRatesZeroWeightIsNoRate(t *testing.T) {
	rates, err := InverseRates(500, StaffActivity().Weights)
	if err != nil {
		t.Fatalf("inverse rates: %v", err)
	}

	for h, w := range StaffActivity().Weights {
		if w == 0 && rates.HasRate(h) {
			t.Errorf("hour %d has zero weight but rate %v", h, rates[h])
		}
		if w > 0 && !rates.HasRate(h) {
			t.Errorf("hour %d has weight %v but no rate", h, w)
		}
	}
	if got := rates.ExpectedTotal(); math.Abs(got-500) > 1e-6 {
		t.Fatalf("expected total = %v, want 500", got)
	}
}

func TestInverseRatesProportionalToWeight(t *testing.T) {
	w := UserVisit().Weights
	rates, err := InverseRates(3000, w)
	if err != nil {
		t.Fatalf("inverse rates: %v", err)
	}

	sum := w.Sum()
	for h := range w {
		want := 3000 * w[h] / sum
		if got := rates.Expected(h); math.Abs(got-want) > 1e-6 {
			t.Errorf("hour %d expected = %v, want %v", h, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	negative := Uniform().Weights
	negative[5] = -1
	nan := Uniform().Weights
	nan[0] = math.NaN()

	tests := []struct {
		name    string
		target  float64
		weights Weights
		wantErr bool
	}{
		{"valid", 100, Uniform().Weights, false},
		{"all zero weights", 100, Weights{}, false},
		{"zero target", 0, Uniform().Weights, true},
		{"negative target", -5, Uniform().Weights, true},
		{"infinite target", math.Inf(1), Uniform().Weights, true},
		{"negative weight", 100, negative, true},
		{"nan weight", 100, nan, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.target, tt.weights)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidProfile) {
				t.Fatalf("error %v does not wrap ErrInvalidProfile", err)
			}
		})
	}
}

func TestFromSliceRejectsWrongLength(t *testing.T) {
	if _, err := FromSlice(make([]float64, 23)); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for 23 entries, got %v", err)
	}
	if _, err := FromSlice(make([]float64, 24)); err != nil {
		t.Fatalf("unexpected error for 24 entries: %v", err)
	}
}

func TestLookupPresets(t *testing.T) {
	for _, name := range Names() {
		p, ok := Lookup(name)
		if !ok {
			t.Fatalf("preset %q listed but not found", name)
		}
		if p.Name != name {
			t.Errorf("preset %q has name %q", name, p.Name)
		}
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("unexpected preset nope")
	}
}

func TestParseRoundTrip(t *testing.T) {
	data, err := Encode(UserVisit(), 2500)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	p, target, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "user-visit" || target != 2500 {
		t.Fatalf("got name=%q target=%v", p.Name, target)
	}
	if p.Weights != UserVisit().Weights {
		t.Fatalf("weights mismatch: %v", p.Weights)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.yaml")
	if err := os.WriteFile(short, []byte("name: short\nweights: [1, 2, 3]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFile(short); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("short profile: expected ErrInvalidProfile, got %v", err)
	}

	zero := filepath.Join(dir, "zero.yaml")
	if err := os.WriteFile(zero, []byte("weights: [0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFile(zero); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("zero profile: expected ErrInvalidProfile, got %v", err)
	}

	if _, _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
