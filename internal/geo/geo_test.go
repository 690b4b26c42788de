package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/commutetimely/leavetime/internal/geo"
)

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coord   geo.Coordinate
		wantErr bool
	}{
		{"valid", geo.Coordinate{Lat: 52.37, Lon: 4.90}, false},
		{"poles and antimeridian", geo.Coordinate{Lat: -90, Lon: 180}, false},
		{"lat too high", geo.Coordinate{Lat: 91, Lon: 0}, true},
		{"lon too low", geo.Coordinate{Lat: 0, Lon: -181}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoordinate_Quantize(t *testing.T) {
	c := geo.Coordinate{Lat: 52.367649, Lon: 4.904142}
	assert.Equal(t, geo.Coordinate{Lat: 52.368, Lon: 4.904}, c.Quantize(3))
}

func TestDistanceMeters(t *testing.T) {
	amsterdam := geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
	utrecht := geo.Coordinate{Lat: 52.0907, Lon: 5.1214}

	// Roughly 34 km as the crow flies.
	assert.InDelta(t, 34000, geo.DistanceMeters(amsterdam, utrecht), 1500)
	assert.InDelta(t, 0, geo.DistanceMeters(amsterdam, amsterdam), 1e-6)
}

func TestMidpoint(t *testing.T) {
	a := geo.Coordinate{Lat: 0, Lon: 0}
	b := geo.Coordinate{Lat: 0, Lon: 10}

	mid := geo.Midpoint(a, b)
	assert.InDelta(t, 0, mid.Lat, 1e-9)
	assert.InDelta(t, 5, mid.Lon, 1e-9)
}
