package models

import "time"

// TripLocation is a trip endpoint.
type TripLocation struct {
	Point       Point  `json:"point"`
	Address     string `json:"address,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Trip represents a saved trip.
type Trip struct {
	ID            string        `json:"id"`
	Label         string        `json:"label"`
	Origin        *TripLocation `json:"origin,omitempty"`
	Destination   TripLocation  `json:"destination"`
	ArrivalTime   Timestamp     `json:"arrivalTime"`
	NextArrival   *Timestamp    `json:"nextArrival,omitempty"`
	TimeZone      string        `json:"timeZone"`
	BufferMinutes *int          `json:"bufferMinutes,omitempty"`
	RepeatDays    []int         `json:"repeatDays"`
	Active        bool          `json:"active"`
	CreatedAt     Timestamp     `json:"createdAt"`
	UpdatedAt     Timestamp     `json:"updatedAt"`
}

// TripCreateRequest is the request body for creating a trip.
// RepeatDays holds ISO-8601 day numbers (1 = Monday, 7 = Sunday).
type TripCreateRequest struct {
	Label         string        `json:"label"`
	Origin        *TripLocation `json:"origin,omitempty"`
	Destination   TripLocation  `json:"destination"`
	ArrivalTime   time.Time     `json:"arrivalTime"`
	TimeZone      string        `json:"timeZone,omitempty"`
	BufferMinutes *int          `json:"bufferMinutes,omitempty"`
	RepeatDays    []int         `json:"repeatDays,omitempty"`
	Active        *bool         `json:"active,omitempty"`
}

// TripUpdateRequest is the request body for updating a trip.
// Absent fields are left unchanged. ClearOrigin removes a fixed origin.
type TripUpdateRequest struct {
	Label         *string       `json:"label,omitempty"`
	Origin        *TripLocation `json:"origin,omitempty"`
	ClearOrigin   bool          `json:"clearOrigin,omitempty"`
	Destination   *TripLocation `json:"destination,omitempty"`
	ArrivalTime   *time.Time    `json:"arrivalTime,omitempty"`
	TimeZone      *string       `json:"timeZone,omitempty"`
	BufferMinutes *int          `json:"bufferMinutes,omitempty"`
	RepeatDays    *[]int        `json:"repeatDays,omitempty"`
	Active        *bool         `json:"active,omitempty"`
}

// PagedTrips is a page of trips.
type PagedTrips struct {
	Items []Trip            `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
