package models

import "time"

// Region is a geographic grouping for monitoring sites.
type Region struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"        validate:"required"`
	ExternalID string    `json:"external_id" validate:"required"` // identifier from the upstream data source
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Site is a monitoring location that collects measurement data.
type Site struct {
	ID          string    `json:"id"`
	RegionID    string    `json:"region_id"   validate:"required"`
	Name        string    `json:"name"        validate:"required"`
	ExternalID  string    `json:"external_id" validate:"required"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pollutant is a measurable quantity reported by monitoring sites.
type Pollutant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"        validate:"required"`
	ExternalID string    `json:"external_id" validate:"required"`
	Unit       string    `json:"unit"` // e.g. µg/m³ or ppm
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Measurement is a single fact recorded for a pollutant at a site. Value is a
// pointer because upstream sources occasionally deliver records without one;
// such measurements are stored but never trigger rules.
type Measurement struct {
	ID          string    `json:"id"`
	SiteID      string    `json:"site_id"      validate:"required"`
	PollutantID string    `json:"pollutant_id" validate:"required"`
	MeasuredAt  time.Time `json:"measured_at"  validate:"required"`
	Value       *float64  `json:"value"`
	ExternalID  string    `json:"external_id"  validate:"required"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasValue reports whether the measurement carries a usable numeric value.
func (m *Measurement) HasValue() bool {
	return m != nil && m.Value != nil
}
