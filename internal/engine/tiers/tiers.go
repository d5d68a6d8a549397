// Package tiers maps service levels to request ceilings and credential caps.
package tiers

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	Anonymous = "anonymous"
	Free      = "free"
	Basic     = "basic"
	Premium   = "premium"
)

type Tier struct {
	Name            string `yaml:"name"`
	RequestsPerHour int    `yaml:"requests_per_hour"`
	MaxCredentials  int    `yaml:"max_credentials"`
	// Endpoints overrides RequestsPerHour for individual endpoint classes.
	Endpoints map[string]int `yaml:"endpoints,omitempty"`
}

type Catalog struct {
	tiers map[string]Tier
}

type file struct {
	Tiers []Tier `yaml:"tiers"`
}

func Default() *Catalog {
	c, _ := New([]Tier{
		{Name: Anonymous, RequestsPerHour: 60, MaxCredentials: 0},
		{Name: Free, RequestsPerHour: 100, MaxCredentials: 2},
		{Name: Basic, RequestsPerHour: 1000, MaxCredentials: 5},
		{Name: Premium, RequestsPerHour: 10000, MaxCredentials: 10},
	})
	return c
}

func New(list []Tier) (*Catalog, error) {
	if err := validate(list); err != nil {
		return nil, err
	}
	c := &Catalog{tiers: make(map[string]Tier, len(list))}
	for _, t := range list {
		c.tiers[t.Name] = t
	}
	return c, nil
}

// Load reads a YAML tier file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tier configuration: %w", err)
	}
	c, err := New(f.Tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid tier configuration: %w", err)
	}
	return c, nil
}

func validate(list []Tier) error {
	if len(list) == 0 {
		return errors.New("no tiers defined")
	}
	seen := make(map[string]bool, len(list))
	for _, t := range list {
		if t.Name == "" {
			return errors.New("tier name cannot be empty")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
		if t.RequestsPerHour <= 0 {
			return fmt.Errorf("tier %q: requests_per_hour must be positive", t.Name)
		}
		if t.MaxCredentials < 0 {
			return fmt.Errorf("tier %q: max_credentials cannot be negative", t.Name)
		}
		for endpoint, limit := range t.Endpoints {
			if limit <= 0 {
				return fmt.Errorf("tier %q: endpoint %q limit must be positive", t.Name, endpoint)
			}
		}
	}
	if !seen[Anonymous] {
		return fmt.Errorf("tier %q is required", Anonymous)
	}
	return nil
}

func (c *Catalog) Get(name string) (Tier, bool) {
	t, ok := c.tiers[name]
	return t, ok
}

// Issuable reports whether credentials can be created for the tier.
func (c *Catalog) Issuable(name string) bool {
	t, ok := c.tiers[name]
	return ok && t.MaxCredentials > 0
}

// Ceiling returns the per-window request ceiling of tier for endpoint.
// Unknown tiers get the anonymous ceiling.
func (c *Catalog) Ceiling(tier, endpoint string) int {
	t, ok := c.tiers[tier]
	if !ok {
		t = c.tiers[Anonymous]
	}
	if limit, ok := t.Endpoints[endpoint]; ok {
		return limit
	}
	return t.RequestsPerHour
}

func (c *Catalog) MaxCredentials(tier string) int {
	return c.tiers[tier].MaxCredentials
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tiers))
	for name := range c.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
