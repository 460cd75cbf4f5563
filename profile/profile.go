// Package profile is the catalogue of host controller profiles: core
// variant, channel count, speed, and buffering options of the parts the
// engine runs on.
package profile

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

//go:embed profiles.yaml
var rawProfiles []byte

var profiles Profiles

func init() {
	var err error
	if profiles, err = Parse(rawProfiles); err != nil {
		panic(err)
	}
}

// All returns the built-in profiles.
func All() Profiles {
	return profiles
}

// Lookup returns the built-in profile with the given name.
func Lookup(name string) (Profile, error) {
	return profiles.Find(name)
}

// Profile describes one host controller configuration.
type Profile struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Variant          string   `yaml:"variant"`
	Channels         int      `yaml:"channels"`
	Speed            string   `yaml:"speed"`
	PHY              string   `yaml:"phy"`
	DMA              bool     `yaml:"dma"`
	SOF              bool     `yaml:"sof"`
	BulkDoubleBuffer bool     `yaml:"bulkDoubleBuffer"`
	IsoDoubleBuffer  bool     `yaml:"isoDoubleBuffer"`
	PMASize          int      `yaml:"pma"`
	Chips            []string `yaml:"chips"`
}

// Profiles is a list of profiles.
type Profiles []Profile

// Parse decodes and validates a YAML list of profiles.
func Parse(data []byte) (Profiles, error) {
	var ps Profiles
	if err := yaml.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("%w: profiles: %w", pkg.ErrInvalidParameter, err)
	}
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate profile %q", pkg.ErrInvalidParameter, p.Name)
		}
		seen[p.Name] = true
		if _, err := p.Config(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}
	return ps, nil
}

// Find returns the profile with the given name, ignoring case.
func (ps Profiles) Find(name string) (Profile, error) {
	i := slices.IndexFunc(ps, func(p Profile) bool {
		return strings.EqualFold(p.Name, name)
	})
	if i < 0 {
		return Profile{}, fmt.Errorf("%w: unknown profile %q", pkg.ErrInvalidParameter, name)
	}
	return ps[i], nil
}

// Names returns the profile names in catalogue order.
func (ps Profiles) Names() []string {
	return lo.Map(ps, func(p Profile, _ int) string { return p.Name })
}

// ByVariant returns the profiles of variant v.
func (ps Profiles) ByVariant(v core.Variant) Profiles {
	return lo.Filter(ps, func(p Profile, _ int) bool {
		pv, ok := core.ParseVariant(p.Variant)
		return ok && pv == v
	})
}

// ForChip returns the profiles that list chip.
func (ps Profiles) ForChip(chip string) Profiles {
	chip = strings.ToLower(chip)
	return lo.Filter(ps, func(p Profile, _ int) bool {
		return slices.Contains(p.Chips, chip)
	})
}

// CoreVariant returns the parsed variant.
func (p Profile) CoreVariant() (core.Variant, error) {
	v, ok := core.ParseVariant(p.Variant)
	if !ok {
		return 0, fmt.Errorf("%w: variant %q", pkg.ErrInvalidParameter, p.Variant)
	}
	return v, nil
}

// Config converts p into a core configuration and checks it against the
// variant's limits.
func (p Profile) Config() (core.Config, error) {
	v, err := p.CoreVariant()
	if err != nil {
		return core.Config{}, err
	}
	speed, ok := core.ParseSpeed(p.Speed)
	if !ok {
		return core.Config{}, fmt.Errorf("%w: speed %q", pkg.ErrInvalidParameter, p.Speed)
	}
	phy, ok := core.ParsePHY(p.PHY)
	if !ok {
		return core.Config{}, fmt.Errorf("%w: phy %q", pkg.ErrInvalidParameter, p.PHY)
	}
	cfg := core.Config{
		Channels:         p.Channels,
		Speed:            speed,
		PHY:              phy,
		DMA:              p.DMA,
		SOF:              p.SOF,
		BulkDoubleBuffer: p.BulkDoubleBuffer,
		IsoDoubleBuffer:  p.IsoDoubleBuffer,
		PMASize:          p.PMASize,
	}
	if err := cfg.Validate(core.MaxChannels); err != nil {
		return core.Config{}, err
	}

	switch v {
	case core.VariantDRD:
		if speed != core.SpeedFull || p.DMA {
			return core.Config{}, fmt.Errorf("%w: drd is full speed without DMA", pkg.ErrNotSupported)
		}
	case core.VariantOTG:
		if p.BulkDoubleBuffer || p.IsoDoubleBuffer || p.PMASize != 0 {
			return core.Config{}, fmt.Errorf("%w: otg has no packet memory", pkg.ErrNotSupported)
		}
		if speed == core.SpeedHigh && phy != core.PHYULPI {
			return core.Config{}, fmt.Errorf("%w: high speed needs a ulpi phy", pkg.ErrNotSupported)
		}
	}
	return cfg, nil
}
