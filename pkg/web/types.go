// Package web provides HTTP handlers and REST API endpoints for the alert
// lifecycle and the workflow transition surface.
package web

import (
	"strings"
	"unicode"
)

// TransitionOption is one transition the actor may perform, presented as a
// (name, label) pair for UI consumption.
type TransitionOption struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// TransitionResponse reports where an entity landed after a transition.
type TransitionResponse struct {
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	StateID    string `json:"state_id"`
	State      string `json:"state"`
}

// IngestMeasurementRequest is the body of POST /measurements. Value is a
// pointer so sources may submit records without one.
type IngestMeasurementRequest struct {
	ExternalID          string   `json:"external_id"           validate:"required"`
	SiteExternalID      string   `json:"site_external_id"      validate:"required"`
	PollutantExternalID string   `json:"pollutant_external_id" validate:"required"`
	MeasuredAt          string   `json:"measured_at"           validate:"required"`
	Value               *float64 `json:"value"`
	Unit                string   `json:"unit,omitempty"`
}

// TransitionLabel renders an underscore-separated transition name as a
// human-readable Title Case label: "mark_resolved" becomes "Mark Resolved".
func TransitionLabel(name string) string {
	words := strings.Split(name, "_")

	for i, word := range words {
		runes := []rune(word)
		if len(runes) == 0 {
			continue
		}

		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}
