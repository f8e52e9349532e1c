package ygggo_geopool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_PerRegion(t *testing.T) {
	a, mockA := mockRegion(t, "a")
	expectProbe(mockA) // start-up probe
	expectProbe(mockA) // health check

	m, err := New(context.Background(), testConfig(a, downRegion("b")))
	require.NoError(t, err)
	defer m.Close()

	statuses, err := m.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	healthy := statuses[0]
	assert.Equal(t, "a", healthy.Region)
	assert.True(t, healthy.Primary)
	assert.True(t, healthy.Healthy)
	assert.Empty(t, healthy.Errors)
	assert.False(t, healthy.LastChecked.IsZero())
	assert.Greater(t, healthy.ResponseTime, time.Duration(0))
	assert.Equal(t, 16, healthy.ConnectionsMax)

	down := statuses[1]
	assert.Equal(t, "b", down.Region)
	assert.False(t, down.Primary)
	assert.False(t, down.Healthy)
	require.Len(t, down.Errors, 1)
	assert.Equal(t, "connectivity", down.Errors[0].Type)
	assert.Contains(t, down.Errors[0].Message, "acquire")

	assert.Equal(t, "a", m.Primary(), "health checks never move the primary")
	assert.NoError(t, mockA.ExpectationsWereMet())
}

func TestPoolHealthCheck_Timeout(t *testing.T) {
	cfg := testConfig(downRegion("a"))
	m := buildManager(t, cfg)
	p, err := m.Pool("a")
	require.NoError(t, err)

	status := p.HealthCheck(context.Background(), time.Nanosecond)
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Errors)
}
