package ygggo_geopool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
)

func TestAcquire_PrimaryHealthyKeepsPrimary(t *testing.T) {
	a, _ := mockRegion(t, "a")
	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(a, b))

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "a", conn.Region())
	assert.Equal(t, "a", m.Primary())
}

func TestAcquire_FailsOverToNextCandidate(t *testing.T) {
	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(downRegion("a"), b, downRegion("c")))
	require.Equal(t, "a", m.Primary())

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "b", conn.Region())
	assert.Equal(t, "b", m.Primary())
}

func TestAcquire_FailoverFollowsCandidateOrder(t *testing.T) {
	a, _ := mockRegion(t, "a")
	m := buildManager(t, testConfig(a, downRegion("b"), downRegion("c")))
	m.primary.set("c")

	// candidates are c, a, b: c fails, a is promoted and serves
	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "a", conn.Region())
	assert.Equal(t, "a", m.Primary())
}

func TestAcquire_ClosedPoolsDoNotFailOver(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	a, _ := mockRegion(t, "a")
	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(a, b), WithMeterProvider(provider))

	// pools shut down by a concurrent Close before the manager flag is seen
	_ = m.pools.closeAll()

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, errors.Is(err, ErrAllPoolsUnavailable))
	assert.Equal(t, "a", m.Primary())
	assert.Zero(t, counterValue(t, reader, "ygggo_geopool_primary_changes_total"))
}

func TestAcquire_AllPoolsUnavailableWrapsFirstError(t *testing.T) {
	m := buildManager(t, testConfig(downRegion("a"), downRegion("b")))

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllPoolsUnavailable))
	assert.Contains(t, err.Error(), "expected a connection to be available")
}

func TestAcquire_CancelledContextDoesNotDemote(t *testing.T) {
	a, _ := mockRegion(t, "a")
	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(a, b))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "a", m.Primary())
}

func TestAcquire_AfterCloseReturnsErrClosed(t *testing.T) {
	a, _ := mockRegion(t, "a")
	m := buildManager(t, testConfig(a))
	_ = m.Close()

	_, err := m.Acquire(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestAcquire_Concurrent(t *testing.T) {
	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(downRegion("a"), b))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.WithConn(context.Background(), func(c *Conn) error {
				if c.Region() != "b" {
					return errors.New("served by " + c.Region())
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "b", m.Primary())
}
