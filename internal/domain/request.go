package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultDurationMinutes is the parking duration assumed when a request omits it.
const DefaultDurationMinutes = 120

var validate = validator.New()

// Occupancy is a real-time occupancy reading reported by a facility's sensors.
type Occupancy struct {
	TotalSpaces     int `json:"total_spaces" validate:"min=0"`
	CurrentVehicles int `json:"current_vehicles" validate:"min=0"`
}

// Candidate is one parking facility the caller wants ranked.
type Candidate struct {
	ID string `json:"p_id" validate:"required"`

	// Review is the average star rating (0–5). Values outside the range are clamped during scoring.
	Review float64 `json:"review"`

	// Weekday uses the caller's 1-based convention (1 = Monday … 7 = Sunday). Nil means 1.
	Weekday *int `json:"weekday,omitempty"`
	Hour    *int `json:"hour,omitempty" validate:"omitempty,min=0,max=23"`

	// Congestion is a caller-asserted real-time congestion percentage.
	Congestion *float64   `json:"congestion,omitempty"`
	Occupancy  *Occupancy `json:"occupancy,omitempty"`
}

// Request is one recommendation request: a candidate list plus trip parameters.
type Request struct {
	Candidates      []Candidate `json:"candidates" validate:"required,dive"`
	Duration        *float64    `json:"parking_duration,omitempty" validate:"omitempty,min=0"`
	Lat             *float64    `json:"base_lat,omitempty" validate:"required_with=Lon,omitempty,latitude"`
	Lon             *float64    `json:"base_lon,omitempty" validate:"required_with=Lat,omitempty,longitude"`
	PreferredFactor string      `json:"preferred_factor,omitempty"`
}

// ParseRequest decodes and validates a JSON request payload.
// Every failure wraps ErrMalformedRequest.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: decode: %w", ErrMalformedRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Request{}, fmt.Errorf("%w: unexpected data after request body", ErrMalformedRequest)
	}
	if err := ValidateRequest(req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ValidateRequest checks the structural constraints of a request.
func ValidateRequest(req Request) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if req.Duration != nil && math.IsNaN(*req.Duration) {
		return fmt.Errorf("%w: parking_duration is not a number", ErrMalformedRequest)
	}
	return nil
}

// DurationMinutes returns the requested duration or the default.
func (r Request) DurationMinutes() float64 {
	if r.Duration == nil {
		return DefaultDurationMinutes
	}
	return *r.Duration
}

// Origin returns the caller coordinates when both are present.
func (r Request) Origin() (lat, lon float64, ok bool) {
	if r.Lat == nil || r.Lon == nil {
		return 0, 0, false
	}
	return *r.Lat, *r.Lon, true
}

// WeekdayIndex converts the caller's 1-based weekday to a 0-based index (0 = Monday).
// Out-of-range values wrap, so 0 maps to 6 and 8 maps to 0.
func (c Candidate) WeekdayIndex() int {
	wd := 1
	if c.Weekday != nil {
		wd = *c.Weekday
	}
	return ((wd-1)%7 + 7) % 7
}

// HourOfDay returns the requested hour, defaulting to 0.
func (c Candidate) HourOfDay() int {
	if c.Hour == nil {
		return 0
	}
	return *c.Hour
}

// OverrideCongestion returns the caller-asserted congestion percentage, if any.
// An explicit percentage wins over an occupancy reading; an occupancy reading
// with no spaces is ignored.
func (c Candidate) OverrideCongestion() (float64, bool) {
	if c.Congestion != nil && !math.IsNaN(*c.Congestion) {
		return *c.Congestion, true
	}
	if c.Occupancy != nil && c.Occupancy.TotalSpaces > 0 {
		pct := float64(c.Occupancy.CurrentVehicles) / float64(c.Occupancy.TotalSpaces) * 100
		return Clamp(pct, 0, 100), true
	}
	return 0, false
}

// NormalizeFacilityID produces the join key used by every reference table.
func NormalizeFacilityID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
