// Package events defines event types and structures for alert lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "aqwatch.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Alert lifecycle events.
	AlertTriggeredEvent EventType = "alert.triggered"
	AlertRefreshedEvent EventType = "alert.refreshed"

	// Workflow engine events.
	TransitionPerformedEvent EventType = "workflow.transition.performed"

	// Ingestion events.
	MeasurementIngestedEvent EventType = "measurement.ingested"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AlertTriggered is emitted when a rule match creates a new alert.
type AlertTriggered struct {
	BaseEvent

	AlertID       string  `json:"alert_id"`
	RuleID        string  `json:"rule_id"`
	MeasurementID string  `json:"measurement_id"`
	Value         float64 `json:"value"`
}

func (a AlertTriggered) GetType() EventType {
	return AlertTriggeredEvent
}

// AlertRefreshed is emitted when a rule match lands on an already active
// alert and updates it in place instead of opening a second one.
type AlertRefreshed struct {
	BaseEvent

	AlertID       string  `json:"alert_id"`
	RuleID        string  `json:"rule_id"`
	MeasurementID string  `json:"measurement_id"`
	Value         float64 `json:"value"`
}

func (a AlertRefreshed) GetType() EventType {
	return AlertRefreshedEvent
}

// TransitionPerformed is emitted after an entity moves between workflow
// states.
type TransitionPerformed struct {
	BaseEvent

	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	Transition  string `json:"transition"`
	FromStateID string `json:"from_state_id"`
	ToStateID   string `json:"to_state_id"`
	Actor       string `json:"actor"`
}

func (t TransitionPerformed) GetType() EventType {
	return TransitionPerformedEvent
}

// MeasurementIngested is emitted for each measurement accepted by the sync
// or the ingest endpoint.
type MeasurementIngested struct {
	BaseEvent

	MeasurementID string   `json:"measurement_id"`
	SiteID        string   `json:"site_id"`
	PollutantID   string   `json:"pollutant_id"`
	Value         *float64 `json:"value,omitempty"`
}

func (m MeasurementIngested) GetType() EventType {
	return MeasurementIngestedEvent
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}
