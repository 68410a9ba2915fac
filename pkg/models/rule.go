package models

import "time"

// Comparison selects how a rule's threshold is applied. Both modes are
// inclusive at the boundary: equality always triggers.
type Comparison string

const (
	// ComparisonAbove triggers when value >= threshold.
	ComparisonAbove Comparison = "above"
	// ComparisonBelow triggers when value <= threshold.
	ComparisonBelow Comparison = "below"
)

// AlertRule is a threshold policy for a specific (site, pollutant) pair.
type AlertRule struct {
	ID          string     `json:"id"`
	SiteID      string     `json:"site_id"      validate:"required"`
	PollutantID string     `json:"pollutant_id" validate:"required"`
	Name        string     `json:"name"         validate:"required"`
	ExternalID  string     `json:"external_id"  validate:"required"`
	Threshold   float64    `json:"threshold"    validate:"gte=0"`
	Comparison  Comparison `json:"comparison"   validate:"required,oneof=above below"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTriggered reports whether value breaches the configured threshold. A
// missing value never triggers.
func (r *AlertRule) IsTriggered(value *float64) bool {
	if value == nil {
		return false
	}

	if r.Comparison == ComparisonAbove {
		return *value >= r.Threshold
	}

	return *value <= r.Threshold
}

// Matches reports whether the measurement references the rule's site and
// pollutant.
func (r *AlertRule) Matches(m *Measurement) bool {
	return m != nil && m.SiteID == r.SiteID && m.PollutantID == r.PollutantID
}
