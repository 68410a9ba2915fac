package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertTriggered_JSONSerialization(t *testing.T) {
	original := AlertTriggered{
		BaseEvent:     NewBaseEvent(AlertTriggeredEvent),
		AlertID:       "alert-123",
		RuleID:        "rule-456",
		MeasurementID: "measurement-789",
		Value:         42.5,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"alert_id":"alert-123"`)
	assert.Contains(t, string(jsonData), `"type":"alert.triggered"`)

	var deserialized AlertTriggered

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.AlertID, deserialized.AlertID)
	assert.Equal(t, original.RuleID, deserialized.RuleID)
	assert.Equal(t, original.MeasurementID, deserialized.MeasurementID)
	assert.InDelta(t, original.Value, deserialized.Value, 0.0001)
	assert.Equal(t, AlertTriggeredEvent, deserialized.GetType())
}

func TestTransitionPerformed_JSONSerialization(t *testing.T) {
	original := TransitionPerformed{
		BaseEvent:   NewBaseEvent(TransitionPerformedEvent),
		EntityKind:  "alert",
		EntityID:    "alert-123",
		Transition:  "acknowledge",
		FromStateID: "state-1",
		ToStateID:   "state-2",
		Actor:       "operator",
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var deserialized TransitionPerformed

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.EntityKind, deserialized.EntityKind)
	assert.Equal(t, original.Transition, deserialized.Transition)
	assert.Equal(t, original.FromStateID, deserialized.FromStateID)
	assert.Equal(t, original.ToStateID, deserialized.ToStateID)
	assert.Equal(t, original.Actor, deserialized.Actor)
	assert.Equal(t, TransitionPerformedEvent, deserialized.GetType())
}

func TestMeasurementIngested_NilValueOmitted(t *testing.T) {
	event := MeasurementIngested{
		BaseEvent:     NewBaseEvent(MeasurementIngestedEvent),
		MeasurementID: "measurement-123",
		SiteID:        "site-1",
		PollutantID:   "pollutant-1",
	}

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(jsonData), `"value"`)
	assert.Equal(t, MeasurementIngestedEvent, event.GetType())
}

func TestNewBaseEvent_Defaults(t *testing.T) {
	event := NewBaseEvent(AlertRefreshedEvent)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, AlertRefreshedEvent, event.Type)
	assert.WithinDuration(t, time.Now(), event.Timestamp, 1*time.Second)
	assert.NotNil(t, event.Metadata)

	other := NewBaseEvent(AlertRefreshedEvent)
	assert.NotEqual(t, event.ID, other.ID)
}
