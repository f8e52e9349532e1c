package ygggo_geopool

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// poolSet owns exactly one Pool per region name.
type poolSet struct {
	pools     map[string]*Pool
	order     []string
	closeOnce sync.Once
}

func newPoolSet() *poolSet {
	return &poolSet{pools: make(map[string]*Pool)}
}

func (s *poolSet) add(p *Pool) error {
	name := p.region.Name
	if _, dup := s.pools[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateRegion, name)
	}
	s.pools[name] = p
	s.order = append(s.order, name)
	return nil
}

func (s *poolSet) get(name string) (*Pool, error) {
	p, ok := s.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	return p, nil
}

func (s *poolSet) len() int { return len(s.pools) }

// closeAll closes every pool once. Later calls return nil.
func (s *poolSet) closeAll() error {
	var result *multierror.Error
	s.closeOnce.Do(func() {
		for _, name := range s.order {
			if err := s.pools[name].Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close pool %s: %w", name, err))
			}
		}
	})
	return result.ErrorOrNil()
}
