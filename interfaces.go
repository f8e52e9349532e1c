package ygggo_geopool

import "context"

// Acquirer hands out connections. A single regional Pool and the
// multi-region Manager both satisfy it.
type Acquirer interface {
	Acquire(ctx context.Context) (*Conn, error)
	WithConn(ctx context.Context, fn func(*Conn) error) error
}

// Ensure our concrete types implement the interfaces at compile time
var (
	_ Acquirer = (*Pool)(nil)
	_ Acquirer = (*Manager)(nil)
)
