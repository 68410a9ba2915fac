package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

const alertCollection = "alerts"

// AlertRepository handles alert file operations. Row-level locking is
// emulated with per-alert in-process mutexes: RefreshActive uses TryLock to
// get the lock-or-skip semantics the upsert protocol requires, SwapState
// takes the lock unconditionally so concurrent transitions on one alert
// serialize.
type AlertRepository struct {
	root     string
	mu       sync.Mutex // serializes writes and create-path scans
	rowLocks sync.Map   // alert id -> *sync.Mutex
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(root string) *AlertRepository {
	return &AlertRepository{root: root}
}

func (ar *AlertRepository) rowLock(id string) *sync.Mutex {
	lock, _ := ar.rowLocks.LoadOrStore(id, &sync.Mutex{})

	return lock.(*sync.Mutex)
}

// Alerts returns all alerts, newest trigger first.
func (ar *AlertRepository) Alerts(_ context.Context) ([]*models.Alert, error) {
	alerts, err := readCollection[models.Alert](ar.root, alertCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt) })

	return alerts, nil
}

// AlertByID returns the alert with the given id, or nil when absent.
func (ar *AlertRepository) AlertByID(_ context.Context, id string) (*models.Alert, error) {
	alert := &models.Alert{}

	found, err := readRecord(ar.root, alertCollection, id, alert)
	if err != nil || !found {
		return nil, err
	}

	return alert, nil
}

// AlertsByRule returns the alerts referencing the rule, newest trigger first.
func (ar *AlertRepository) AlertsByRule(ctx context.Context, ruleID string) ([]*models.Alert, error) {
	alerts, err := ar.Alerts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Alert, 0, len(alerts))

	for _, alert := range alerts {
		if alert.RuleID == ruleID {
			out = append(out, alert)
		}
	}

	return out, nil
}

// RefreshActive locks the alert currently in stateID for ruleID without
// waiting and applies mutate. ok=false means no active alert exists or a
// concurrent writer holds its lock; the caller falls through to the create
// path.
func (ar *AlertRepository) RefreshActive(ctx context.Context, ruleID, stateID string, mutate func(*models.Alert)) (*models.Alert, bool, error) {
	candidates, err := ar.AlertsByRule(ctx, ruleID)
	if err != nil {
		return nil, false, err
	}

	for _, candidate := range candidates {
		if candidate.WorkflowStateID != stateID {
			continue
		}

		lock := ar.rowLock(candidate.ID)
		if !lock.TryLock() {
			// Lock-or-skip: never wait on a concurrent writer.
			return nil, false, nil
		}

		alert, err := ar.refreshLocked(ctx, candidate.ID, stateID, mutate)

		lock.Unlock()

		if err != nil {
			return nil, false, err
		}

		if alert != nil {
			return alert, true, nil
		}
	}

	return nil, false, nil
}

// refreshLocked re-reads the alert under its row lock, verifies it is still
// in the expected state and persists the mutation. Returns nil when the alert
// moved on between the scan and the lock.
func (ar *AlertRepository) refreshLocked(ctx context.Context, id, stateID string, mutate func(*models.Alert)) (*models.Alert, error) {
	alert, err := ar.AlertByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if alert == nil || alert.WorkflowStateID != stateID {
		return nil, nil
	}

	mutate(alert)
	alert.UpdatedAt = time.Now().UTC()

	err = writeRecord(ar.root, alertCollection, alert.ID, alert)
	if err != nil {
		return nil, err
	}

	return alert, nil
}

// UpsertByMeasurement inserts the alert keyed by (rule, measurement). A
// re-entry for the same pair refreshes the existing row in place.
func (ar *AlertRepository) UpsertByMeasurement(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	existing, err := ar.alertByRuleAndMeasurement(ctx, alert.RuleID, alert.MeasurementID)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()

	if existing != nil {
		existing.Value = alert.Value
		existing.TriggeredAt = alert.TriggeredAt
		existing.WorkflowID = alert.WorkflowID
		existing.WorkflowStateID = alert.WorkflowStateID
		existing.UpdatedAt = now

		err = writeRecord(ar.root, alertCollection, existing.ID, existing)
		if err != nil {
			return nil, false, err
		}

		return existing, false, nil
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	alert.CreatedAt = now
	alert.UpdatedAt = now

	err = writeRecord(ar.root, alertCollection, alert.ID, alert)
	if err != nil {
		return nil, false, err
	}

	return alert, true, nil
}

// SwapState moves the alert between workflow states only when the source
// guard still matches, blocking briefly on the row lock so concurrent
// transitions serialize.
func (ar *AlertRepository) SwapState(ctx context.Context, id, fromStateID, toStateID string) (bool, error) {
	lock := ar.rowLock(id)
	lock.Lock()
	defer lock.Unlock()

	alert, err := ar.AlertByID(ctx, id)
	if err != nil {
		return false, err
	}

	if alert == nil || alert.WorkflowStateID != fromStateID {
		return false, nil
	}

	alert.WorkflowStateID = toStateID
	alert.UpdatedAt = time.Now().UTC()

	err = writeRecord(ar.root, alertCollection, alert.ID, alert)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (ar *AlertRepository) alertByRuleAndMeasurement(ctx context.Context, ruleID, measurementID string) (*models.Alert, error) {
	alerts, err := ar.AlertsByRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	for _, alert := range alerts {
		if alert.MeasurementID == measurementID {
			return alert, nil
		}
	}

	return nil, nil
}
