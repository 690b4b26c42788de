package mapbox

// directionsResponse is the Mapbox Directions API response body.
type directionsResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Routes  []directionsRoute `json:"routes"`
}

// directionsRoute is a single route in the response.
type directionsRoute struct {
	Distance        float64    `json:"distance"`         // meters
	Duration        float64    `json:"duration"`         // seconds, traffic-aware for driving-traffic
	DurationTypical *float64   `json:"duration_typical"` // seconds under typical traffic, absent outside coverage
	Legs            []routeLeg `json:"legs"`
}

// routeLeg is one leg between two waypoints.
type routeLeg struct {
	Summary string `json:"summary"`
}

// errorResponse is the body returned with non-2xx statuses.
type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Mapbox response codes.
const (
	codeOk        = "Ok"
	codeNoRoute   = "NoRoute"
	codeNoSegment = "NoSegment"
)
