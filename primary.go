package ygggo_geopool

import "sync/atomic"

// primarySelector holds the name of the preferred region. Writers race
// freely: the router on failover, the re-prober on failback. Last write wins.
type primarySelector struct {
	name atomic.Pointer[string]
}

func (s *primarySelector) current() string {
	if p := s.name.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *primarySelector) set(name string) {
	s.name.Store(&name)
}

// compareAndSwap promotes next only while old is still the primary.
func (s *primarySelector) compareAndSwap(old, next string) bool {
	cur := s.name.Load()
	if cur == nil || *cur != old {
		return false
	}
	return s.name.CompareAndSwap(cur, &next)
}
