package models

// AlternativeLeaveTime is an alternative departure.
type AlternativeLeaveTime struct {
	LeaveTime          Timestamp `json:"leaveTime"`
	ArrivalProbability float64   `json:"arrivalProbability"`
	Description        string    `json:"description"`
}

// Conditions summarizes the traffic and weather a recommendation was based on.
type Conditions struct {
	DistanceMeters           float64   `json:"distanceMeters"`
	TravelMinutes            float64   `json:"travelMinutes"`
	Congestion               string    `json:"congestion"`
	WeatherCondition         string    `json:"weatherCondition"`
	TemperatureC             float64   `json:"temperatureC"`
	PrecipitationProbability float64   `json:"precipitationProbability"`
	VisibilityKm             float64   `json:"visibilityKm"`
	Estimated                bool      `json:"estimated"`
	GeneratedAt              Timestamp `json:"generatedAt"`
}

// Recommendation is a leave-time recommendation for a trip.
type Recommendation struct {
	TripID                string                 `json:"tripId"`
	ArrivalTime           Timestamp              `json:"arrivalTime"`
	LeaveTime             Timestamp              `json:"leaveTime"`
	Confidence            float64                `json:"confidence"`
	Explanation           string                 `json:"explanation"`
	Alternatives          []AlternativeLeaveTime `json:"alternatives"`
	BufferMinutes         int                    `json:"bufferMinutes"`
	UserBufferMinutes     int                    `json:"userBufferMinutes"`
	WeatherPenaltyMinutes float64                `json:"weatherPenaltyMinutes"`
	Source                string                 `json:"source"`
	Conditions            Conditions             `json:"conditions"`
	PredictedAt           Timestamp              `json:"predictedAt"`
}

// RefreshAccepted is returned when a refresh was queued.
type RefreshAccepted struct {
	TripID      string    `json:"tripId"`
	RequestedAt Timestamp `json:"requestedAt"`
}
