package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/provider/resilience"
)

type stubBreaker struct {
	state  gobreaker.State
	counts gobreaker.Counts
}

func (b stubBreaker) CircuitBreakerState() gobreaker.State   { return b.state }
func (b stubBreaker) CircuitBreakerCounts() gobreaker.Counts { return b.counts }

func TestRegistry_ClientRegistersOnConstruction(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("mapbox")
	cfg.Registry = registry

	client := resilience.NewClient(cfg)

	health, ok := registry.Health("mapbox")
	require.True(t, ok)
	assert.Equal(t, "mapbox", client.Name())
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.HealthOK, health.Level())
	assert.True(t, health.LastSuccessAt.IsZero())
	assert.True(t, health.LastFailureAt.IsZero())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("missing")
	registry.RecordFailure("missing", errors.New("boom"))

	_, ok := registry.Health("missing")
	assert.False(t, ok)
	assert.Empty(t, registry.AllHealth())
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("openweathermap", stubBreaker{state: gobreaker.StateClosed})

	registry.RecordSuccess("openweathermap")
	registry.RecordFailure("openweathermap", errors.New("status 503"))
	registry.RecordFailure("openweathermap", nil)

	health, ok := registry.Health("openweathermap")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), health.LastSuccessAt, time.Second)
	assert.WithinDuration(t, time.Now(), health.LastFailureAt, time.Second)
	assert.Equal(t, "status 503", health.LastError, "a nil error keeps the previous message")
}

func TestRegistry_AllHealthSortedByName(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("prediction", stubBreaker{})
	registry.Register("mapbox", stubBreaker{counts: gobreaker.Counts{ConsecutiveFailures: 2}})
	registry.Register("openweathermap", stubBreaker{})

	all := registry.AllHealth()

	require.Len(t, all, 3)
	assert.Equal(t, "mapbox", all[0].Name)
	assert.Equal(t, uint32(2), all[0].Counts.ConsecutiveFailures)
	assert.Equal(t, []string{"mapbox", "openweathermap", "prediction"}, registry.Names())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("mapbox", stubBreaker{state: gobreaker.StateOpen})
	registry.RecordFailure("mapbox", errors.New("timeout"))

	registry.Register("mapbox", stubBreaker{state: gobreaker.StateClosed})

	health, _ := registry.Health("mapbox")
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Empty(t, health.LastError)
}

func TestProviderHealth_Level(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  string
	}{
		{gobreaker.StateClosed, resilience.HealthOK},
		{gobreaker.StateHalfOpen, resilience.HealthDegraded},
		{gobreaker.StateOpen, resilience.HealthFailing},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.ProviderHealth{CircuitState: tt.state}.Level())
		})
	}
}

func TestWorst(t *testing.T) {
	closed := resilience.ProviderHealth{CircuitState: gobreaker.StateClosed}
	halfOpen := resilience.ProviderHealth{CircuitState: gobreaker.StateHalfOpen}
	open := resilience.ProviderHealth{CircuitState: gobreaker.StateOpen}

	assert.Equal(t, resilience.HealthOK, resilience.Worst(nil))
	assert.Equal(t, resilience.HealthOK, resilience.Worst([]resilience.ProviderHealth{closed, closed}))
	assert.Equal(t, resilience.HealthDegraded, resilience.Worst([]resilience.ProviderHealth{closed, halfOpen}))
	assert.Equal(t, resilience.HealthFailing, resilience.Worst([]resilience.ProviderHealth{open, halfOpen, closed}))
}
