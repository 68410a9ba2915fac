package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

const measurementCollection = "measurements"

// MeasurementRepository handles measurement file operations.
type MeasurementRepository struct {
	root string
	mu   sync.Mutex
}

// NewMeasurementRepository creates a new measurement repository.
func NewMeasurementRepository(root string) *MeasurementRepository {
	return &MeasurementRepository{root: root}
}

// Measurements returns all measurements, newest first.
func (mr *MeasurementRepository) Measurements(_ context.Context) ([]*models.Measurement, error) {
	measurements, err := readCollection[models.Measurement](mr.root, measurementCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].MeasuredAt.After(measurements[j].MeasuredAt)
	})

	return measurements, nil
}

// MeasurementByID returns the measurement with the given id, or nil.
func (mr *MeasurementRepository) MeasurementByID(_ context.Context, id string) (*models.Measurement, error) {
	measurement := &models.Measurement{}

	found, err := readRecord(mr.root, measurementCollection, id, measurement)
	if err != nil || !found {
		return nil, err
	}

	return measurement, nil
}

// MeasurementByExternalID returns the measurement carrying the upstream
// identifier, or nil.
func (mr *MeasurementRepository) MeasurementByExternalID(ctx context.Context, externalID string) (*models.Measurement, error) {
	measurements, err := mr.Measurements(ctx)
	if err != nil {
		return nil, err
	}

	for _, measurement := range measurements {
		if measurement.ExternalID == externalID {
			return measurement, nil
		}
	}

	return nil, nil
}

// RecentMeasurements returns measurements taken at or after since, newest
// first.
func (mr *MeasurementRepository) RecentMeasurements(ctx context.Context, since time.Time) ([]*models.Measurement, error) {
	measurements, err := mr.Measurements(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Measurement, 0, len(measurements))

	for _, measurement := range measurements {
		if !measurement.MeasuredAt.Before(since) {
			out = append(out, measurement)
		}
	}

	return out, nil
}

// LatestMeasuredAt returns the newest stored measurement timestamp.
func (mr *MeasurementRepository) LatestMeasuredAt(ctx context.Context) (time.Time, error) {
	measurements, err := mr.Measurements(ctx)
	if err != nil || len(measurements) == 0 {
		return time.Time{}, err
	}

	return measurements[0].MeasuredAt, nil
}

// SaveMeasurement upserts by external id.
func (mr *MeasurementRepository) SaveMeasurement(ctx context.Context, measurement *models.Measurement) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	existing, err := mr.MeasurementByExternalID(ctx, measurement.ExternalID)
	if err != nil {
		return err
	}

	if existing != nil {
		measurement.ID = existing.ID
		measurement.CreatedAt = existing.CreatedAt
	} else {
		measurement.ID = uuid.New().String()
		measurement.CreatedAt = time.Now().UTC()
	}

	return writeRecord(mr.root, measurementCollection, measurement.ID, measurement)
}
