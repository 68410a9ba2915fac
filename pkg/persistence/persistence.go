// Package persistence provides the data storage abstraction layer for the
// workflow graph, rules, alerts and measurement data.
package persistence

import (
	"context"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
)

// Persistence aggregates the repositories backing the engine. State lives in
// one relational store; implementations coordinate writers with intra-database
// locking only.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RuleRepository() RuleRepository
	AlertRepository() AlertRepository
	MeasurementRepository() MeasurementRepository
	ReferenceRepository() ReferenceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow aggregates (states and transitions load
// with the workflow) and the derived grant table.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	WorkflowByName(ctx context.Context, name string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	// SaveGrants persists grants idempotently by (workflow, transition):
	// re-deriving an existing grant is a no-op, never a duplicate.
	SaveGrants(ctx context.Context, grants []*models.Grant) error
	GrantsByWorkflow(ctx context.Context, workflowID string) ([]*models.Grant, error)
}

// RuleRepository stores alert rules.
type RuleRepository interface {
	Rules(ctx context.Context) ([]*models.AlertRule, error)
	RuleByID(ctx context.Context, id string) (*models.AlertRule, error)
	RuleByExternalID(ctx context.Context, externalID string) (*models.AlertRule, error)
	// ActiveRulesFor returns enabled rules bound to the (site, pollutant) pair.
	ActiveRulesFor(ctx context.Context, siteID, pollutantID string) ([]*models.AlertRule, error)
	SaveRule(ctx context.Context, rule *models.AlertRule) error
}

// AlertRepository stores alerts and carries the two concurrency-sensitive
// operations of the engine: the lock-or-skip refresh used by the upsert
// protocol and the guarded state swap used by the transition executor.
type AlertRepository interface {
	Alerts(ctx context.Context) ([]*models.Alert, error)
	AlertByID(ctx context.Context, id string) (*models.Alert, error)
	AlertsByRule(ctx context.Context, ruleID string) ([]*models.Alert, error)

	// RefreshActive locks the alert currently in stateID for ruleID without
	// waiting (lock-or-skip), applies mutate while the lock is held and
	// persists the result. It returns ok=false, with no error, when no such
	// alert exists or a concurrent writer holds the lock.
	RefreshActive(ctx context.Context, ruleID, stateID string, mutate func(*models.Alert)) (*models.Alert, bool, error)

	// UpsertByMeasurement inserts the alert under the hard uniqueness
	// constraint on (rule, measurement). An exact re-entry for the same pair
	// refreshes value, trigger timestamp and workflow attachment instead of
	// failing. Returns created=true when a new row was written.
	UpsertByMeasurement(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error)

	// SwapState moves the alert from one workflow state to another only if it
	// is still in fromStateID, serializing concurrent transitions on the same
	// row. Returns false when the guard did not match.
	SwapState(ctx context.Context, id, fromStateID, toStateID string) (bool, error)
}

// MeasurementRepository stores measurements, keyed externally by the upstream
// source's identifier.
type MeasurementRepository interface {
	// Measurements returns all measurements, newest first.
	Measurements(ctx context.Context) ([]*models.Measurement, error)
	MeasurementByID(ctx context.Context, id string) (*models.Measurement, error)
	MeasurementByExternalID(ctx context.Context, externalID string) (*models.Measurement, error)
	// RecentMeasurements returns measurements taken at or after since, newest
	// first.
	RecentMeasurements(ctx context.Context, since time.Time) ([]*models.Measurement, error)
	// LatestMeasuredAt returns the newest stored measurement timestamp, or the
	// zero time when none exist.
	LatestMeasuredAt(ctx context.Context) (time.Time, error)
	// SaveMeasurement upserts by external id.
	SaveMeasurement(ctx context.Context, measurement *models.Measurement) error
}

// ReferenceRepository stores the read-mostly reference data measurements hang
// off of. Upserts are keyed by external id.
type ReferenceRepository interface {
	UpsertRegion(ctx context.Context, region *models.Region) (*models.Region, error)
	UpsertSite(ctx context.Context, site *models.Site) (*models.Site, error)
	UpsertPollutant(ctx context.Context, pollutant *models.Pollutant) (*models.Pollutant, error)

	Sites(ctx context.Context) ([]*models.Site, error)
	SiteByExternalID(ctx context.Context, externalID string) (*models.Site, error)
	Pollutants(ctx context.Context) ([]*models.Pollutant, error)
	PollutantByExternalID(ctx context.Context, externalID string) (*models.Pollutant, error)
}
