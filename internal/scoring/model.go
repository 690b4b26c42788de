// Package scoring implements the leave-time model served at POST /v1/predict.
//
// The model is a deterministic heuristic over route and weather features. Its
// callers treat it as opaque; only the wire format in wire.go is shared.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	baseBufferSeconds      = 300.0
	variabilityShare       = 0.15
	incidentPenaltySeconds = 120.0
	maxCongestionLevel     = 4

	baseConfidence = 0.85
	minConfidence  = 0.40
	maxConfidence  = 0.98
)

var (
	congestionMultipliers = [...]float64{1.0, 1.05, 1.15, 1.30, 1.50}
	congestionPenalties   = [...]float64{0, 0.05, 0.10, 0.15, 0.25}
	trafficDescriptions   = [...]string{"clear roads", "light traffic", "moderate traffic", "heavy traffic", "severe traffic"}
)

// Features are the model inputs.
type Features struct {
	ArrivalTime              time.Time
	CurrentTime              time.Time
	DistanceMeters           float64
	BaselineDurationSeconds  float64
	TrafficDelaySeconds      float64
	IncidentCount            int
	CongestionLevel          int
	WeatherScore             float64
	PrecipitationProbability float64
	VisibilityKm             float64
	UserBufferMinutes        int

	// WeatherDelaySeconds is the caller's additive weather delay. When zero
	// the model scales travel by precipitation and visibility instead.
	WeatherDelaySeconds float64
}

// Alternative is an alternative leave time with its arrival probability.
type Alternative struct {
	LeaveTime          time.Time
	ArrivalProbability float64
	Description        string
}

// Result is the model output.
type Result struct {
	LeaveTime     time.Time
	Confidence    float64
	Explanation   string
	Alternatives  []Alternative
	BufferMinutes int
	CalculatedAt  time.Time
}

// Predict computes the recommended leave time for f.
func Predict(f Features) Result {
	congestion := clampLevel(f.CongestionLevel)

	travel := f.BaselineDurationSeconds + f.TrafficDelaySeconds
	if f.WeatherDelaySeconds > 0 {
		travel += f.WeatherDelaySeconds
	} else {
		travel *= weatherMultiplier(f.PrecipitationProbability, f.VisibilityKm)
	}
	travel *= congestionMultipliers[congestion]
	travel += float64(f.IncidentCount) * incidentPenaltySeconds

	variability := travel * variabilityShare
	if congestion >= 3 {
		variability *= 1.5
	}
	if f.PrecipitationProbability > 50 {
		variability *= 1.3
	}

	base := baseBufferSeconds
	if user := float64(f.UserBufferMinutes) * 60; user > base {
		base = user
	}
	buffer := base + variability
	bufferMinutes := int(buffer / 60)

	leave := f.ArrivalTime.Add(-seconds(travel + buffer))
	confidence := Confidence(f, f.ArrivalTime.Sub(f.CurrentTime))

	return Result{
		LeaveTime:     leave,
		Confidence:    math.Round(confidence*100) / 100,
		Explanation:   explain(travel, bufferMinutes, congestion, f),
		Alternatives:  alternatives(leave, confidence),
		BufferMinutes: bufferMinutes,
		CalculatedAt:  f.CurrentTime,
	}
}

// Confidence scores how reliable a prediction for f is, in [0.40, 0.98].
func Confidence(f Features, untilArrival time.Duration) float64 {
	c := baseConfidence
	c -= congestionPenalties[clampLevel(f.CongestionLevel)]

	switch {
	case f.WeatherScore < 50:
		c -= 0.15
	case f.WeatherScore < 70:
		c -= 0.08
	}

	switch {
	case f.PrecipitationProbability > 70:
		c -= 0.10
	case f.PrecipitationProbability > 40:
		c -= 0.05
	}

	c -= math.Min(0.15, float64(f.IncidentCount)*0.03)

	switch hours := untilArrival.Hours(); {
	case hours > 4:
		c -= 0.10
	case hours > 2:
		c -= 0.05
	}

	return math.Max(minConfidence, math.Min(maxConfidence, c))
}

func weatherMultiplier(precipitation, visibility float64) float64 {
	m := 1.0
	switch {
	case precipitation > 60:
		m += 0.15
	case precipitation > 30:
		m += 0.08
	}
	switch {
	case visibility < 5:
		m += 0.10
	case visibility < 10:
		m += 0.05
	}
	return m
}

func explain(travel float64, bufferMinutes, congestion int, f Features) string {
	parts := []string{fmt.Sprintf("%d min travel", int(travel/60))}
	if congestion > 0 {
		parts = append(parts, trafficDescriptions[congestion])
	}
	switch {
	case f.PrecipitationProbability > 50:
		parts = append(parts, "rain expected")
	case f.WeatherScore < 70:
		parts = append(parts, "poor weather")
	}
	if delay := int(math.Round(f.WeatherDelaySeconds / 60)); delay > 0 {
		parts = append(parts, fmt.Sprintf("+%d min weather delay", delay))
	}
	parts = append(parts, fmt.Sprintf("%d min buffer", bufferMinutes))
	return strings.Join(parts, ", ")
}

func alternatives(leave time.Time, confidence float64) []Alternative {
	return []Alternative{
		{
			LeaveTime:          leave.Add(-10 * time.Minute),
			ArrivalProbability: math.Min(0.98, confidence+0.15),
			Description:        "Extra safe: arrive 10 minutes early",
		},
		{
			LeaveTime:          leave.Add(-5 * time.Minute),
			ArrivalProbability: math.Min(0.95, confidence+0.08),
			Description:        "Safe: arrive 5 minutes early",
		},
		{
			LeaveTime:          leave.Add(5 * time.Minute),
			ArrivalProbability: math.Max(0.50, confidence-0.20),
			Description:        "Risky: might arrive 5 minutes late",
		},
	}
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > maxCongestionLevel {
		return maxCongestionLevel
	}
	return level
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
