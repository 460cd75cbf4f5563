package profile

import (
	"errors"
	"slices"
	"testing"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// =============================================================================
// Catalogue Tests
// =============================================================================

func TestAll(t *testing.T) {
	ps := All()
	if len(ps) == 0 {
		t.Fatal("no built-in profiles")
	}
	for _, p := range ps {
		if _, err := p.Config(); err != nil {
			t.Errorf("profile %q: %v", p.Name, err)
		}
		if p.Description == "" {
			t.Errorf("profile %q has no description", p.Name)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		variant core.Variant
		cfg     core.Config
	}{
		{"otg-fs", core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedFull}},
		{"OTG-HS", core.VariantOTG, core.Config{Channels: 16, Speed: core.SpeedHigh, PHY: core.PHYULPI, DMA: true, SOF: true}},
		{"drd-fs-db", core.VariantDRD, core.Config{Channels: 8, Speed: core.SpeedFull, BulkDoubleBuffer: true, IsoDoubleBuffer: true, PMASize: 2048}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			v, err := p.CoreVariant()
			if err != nil || v != tt.variant {
				t.Errorf("CoreVariant() = %v, %v; want %v", v, err, tt.variant)
			}
			cfg, err := p.Config()
			if err != nil {
				t.Fatalf("Config() error = %v", err)
			}
			if cfg != tt.cfg {
				t.Errorf("Config() = %+v, want %+v", cfg, tt.cfg)
			}
		})
	}

	if _, err := Lookup("nope"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Lookup(nope) error = %v", err)
	}
}

func TestFilters(t *testing.T) {
	ps := All()

	drd := ps.ByVariant(core.VariantDRD)
	if len(drd) == 0 {
		t.Fatal("no drd profiles")
	}
	for _, p := range drd {
		if p.Variant != "drd" {
			t.Errorf("ByVariant(drd) returned %q", p.Name)
		}
	}
	if len(drd)+len(ps.ByVariant(core.VariantOTG)) != len(ps) {
		t.Error("variant filters do not partition the catalogue")
	}

	names := ps.ForChip("STM32U545").Names()
	if !slices.Equal(names, []string{"drd-fs", "drd-fs-db"}) {
		t.Errorf("ForChip(stm32u545) = %v", names)
	}
	if got := ps.ForChip("z80"); len(got) != 0 {
		t.Errorf("ForChip(z80) = %v", got.Names())
	}
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"syntax", "- name: [", pkg.ErrInvalidParameter},
		{"variant", "- {name: a, variant: ehci, channels: 8, speed: full}", pkg.ErrInvalidParameter},
		{"speed", "- {name: a, variant: otg, channels: 8, speed: warp}", pkg.ErrInvalidParameter},
		{"phy", "- {name: a, variant: otg, channels: 8, speed: full, phy: utmi}", pkg.ErrInvalidParameter},
		{"channels", "- {name: a, variant: otg, channels: 17, speed: full}", pkg.ErrInvalidParameter},
		{"duplicate", "- {name: a, variant: otg, channels: 8, speed: full}\n- {name: a, variant: otg, channels: 8, speed: full}", pkg.ErrInvalidParameter},
		{"drd high speed", "- {name: a, variant: drd, channels: 8, speed: high}", pkg.ErrNotSupported},
		{"otg packet memory", "- {name: a, variant: otg, channels: 8, speed: full, pma: 512}", pkg.ErrNotSupported},
		{"hs without ulpi", "- {name: a, variant: otg, channels: 8, speed: high}", pkg.ErrNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_Custom(t *testing.T) {
	ps, err := Parse([]byte(`
- name: bench
  description: bench board
  variant: drd
  channels: 4
  speed: full
  pma: 512
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	p, err := ps.Find("bench")
	if err != nil {
		t.Fatal(err)
	}
	if cfg, _ := p.Config(); cfg.Channels != 4 || cfg.PMASize != 512 {
		t.Errorf("Config() = %+v", cfg)
	}
}
