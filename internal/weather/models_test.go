package weather_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/weather"
)

func TestWeatherSnapshot_Score(t *testing.T) {
	tests := []struct {
		name string
		snap weather.WeatherSnapshot
		want float64
	}{
		{
			name: "ideal",
			snap: weather.WeatherSnapshot{Condition: weather.ConditionClear, VisibilityKm: 10},
			want: 100,
		},
		{
			name: "heavy rain and haze",
			snap: weather.WeatherSnapshot{Condition: weather.ConditionRain, PrecipitationProbability: 80, VisibilityKm: 4},
			want: 100 - 25 - 16 - 15,
		},
		{
			name: "storm in fog with gales never goes negative",
			snap: weather.WeatherSnapshot{Condition: weather.ConditionThunderstorm, PrecipitationProbability: 100, VisibilityKm: 0.2, WindSpeed: 25},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.snap.Score(), 1e-9)
		})
	}
}

func TestCondition_IsPrecipitating(t *testing.T) {
	assert.True(t, weather.ConditionRain.IsPrecipitating())
	assert.True(t, weather.ConditionSnow.IsPrecipitating())
	assert.False(t, weather.ConditionFog.IsPrecipitating())
	assert.False(t, weather.ConditionClear.IsPrecipitating())
}

func TestNearest(t *testing.T) {
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	entries := []weather.WeatherSnapshot{
		{ValidAt: base, TemperatureC: 1},
		{ValidAt: base.Add(time.Hour), TemperatureC: 2},
		{ValidAt: base.Add(2 * time.Hour), TemperatureC: 3},
	}

	got, ok := weather.Nearest(entries, base.Add(70*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 2.0, got.TemperatureC)

	got, _ = weather.Nearest(entries, base.Add(-5*time.Hour))
	assert.Equal(t, 1.0, got.TemperatureC)

	_, ok = weather.Nearest(nil, base)
	assert.False(t, ok)
}

func TestError_IsAdapterFailure(t *testing.T) {
	err := error(&weather.Error{Provider: "openweathermap", Message: "down", Err: weather.ErrProviderUnavailable})
	assert.True(t, errors.Is(err, faults.ErrAdapterFailure))
	assert.True(t, errors.Is(err, weather.ErrProviderUnavailable))
}
