package ygggo_geopool

import (
	"fmt"
	"strings"
)

// Region is a named deployment location and the connection target of its
// load balancer. Target is handed to the driver untouched.
type Region struct {
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

// registry is the immutable, ordered set of regions.
type registry struct {
	regions []Region
	index   map[string]int
}

func newRegistry(regions []Region) (*registry, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}
	r := &registry{
		regions: make([]Region, 0, len(regions)),
		index:   make(map[string]int, len(regions)),
	}
	for i, region := range regions {
		if strings.TrimSpace(region.Name) == "" {
			return nil, fmt.Errorf("%w: region %d has an empty name", ErrConfig, i)
		}
		if strings.TrimSpace(region.Target) == "" {
			return nil, fmt.Errorf("%w: region %q has an empty target", ErrConfig, region.Name)
		}
		if _, dup := r.index[region.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRegion, region.Name)
		}
		r.index[region.Name] = len(r.regions)
		r.regions = append(r.regions, region)
	}
	return r, nil
}

// Regions returns a copy in registry order.
func (r *registry) Regions() []Region {
	out := make([]Region, len(r.regions))
	copy(out, r.regions)
	return out
}

func (r *registry) Names() []string {
	names := make([]string, len(r.regions))
	for i, region := range r.regions {
		names[i] = region.Name
	}
	return names
}

func (r *registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *registry) First() Region { return r.regions[0] }

func (r *registry) Len() int { return len(r.regions) }

// candidates puts primary first and keeps every other region in registry order.
func (r *registry) candidates(primary string) []string {
	order := make([]string, 0, len(r.regions))
	if r.Contains(primary) {
		order = append(order, primary)
	}
	for _, region := range r.regions {
		if region.Name != primary {
			order = append(order, region.Name)
		}
	}
	return order
}
