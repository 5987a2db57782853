package ratelimit

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Preset names.
const (
	ProfileStrict   = "strict"
	ProfileStandard = "standard"
	ProfileLoose    = "loose"
	ProfileAPI      = "api"
)

// ErrUnknownProfile is returned when a preset name is not registered.
var ErrUnknownProfile = errors.New("unknown rate limit profile")

// PresetConfigs returns the stock preset parameters. base supplies the shared
// settings (headers, message, callbacks); window and max are overridden.
func PresetConfigs(base Config) map[string]Config {
	preset := func(name string, max int, keys KeyGenerator) Config {
		cfg := base
		cfg.Name = name
		cfg.Window = 15 * time.Minute
		cfg.Max = max
		if keys != nil {
			cfg.KeyGenerator = keys
		}
		return cfg
	}
	return map[string]Config{
		ProfileStrict:   preset(ProfileStrict, 5, nil),
		ProfileStandard: preset(ProfileStandard, 100, nil),
		ProfileLoose:    preset(ProfileLoose, 1000, nil),
		ProfileAPI:      preset(ProfileAPI, 1000, KeyGeneratorFunc(PrincipalFirst)),
	}
}

// Profiles is an immutable set of named limiters. Each profile owns its store.
type Profiles struct {
	limiters map[string]*Limiter
}

// NewProfiles builds the four stock presets from base.
func NewProfiles(base Config, opts ...Option) *Profiles {
	return NewProfilesFrom(PresetConfigs(base), opts...)
}

// NewProfilesFrom builds limiters from explicit configs keyed by name.
func NewProfilesFrom(configs map[string]Config, opts ...Option) *Profiles {
	p := &Profiles{limiters: make(map[string]*Limiter, len(configs))}
	for name, cfg := range configs {
		cfg.Name = name
		p.limiters[name] = New(cfg, opts...)
	}
	return p
}

// Get returns the limiter registered under name.
func (p *Profiles) Get(name string) (*Limiter, error) {
	l, ok := p.limiters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return l, nil
}

// Names returns the registered profile names in sorted order.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.limiters))
	for name := range p.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every limiter in name order.
func (p *Profiles) Each(fn func(*Limiter)) {
	for _, name := range p.Names() {
		fn(p.limiters[name])
	}
}

// Reset clears every profile's store.
func (p *Profiles) Reset() {
	p.Each(func(l *Limiter) { l.Store().Reset() })
}
