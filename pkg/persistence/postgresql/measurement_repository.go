package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

// MeasurementRepository handles measurement database operations.
type MeasurementRepository struct {
	db *sql.DB
}

// NewMeasurementRepository creates a new measurement repository.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

const measurementColumns = `id, site_id, pollutant_id, measured_at, value, external_id, created_at`

func scanMeasurement(row interface{ Scan(...any) error }) (*models.Measurement, error) {
	measurement := &models.Measurement{}

	var value sql.NullFloat64

	err := row.Scan(
		&measurement.ID,
		&measurement.SiteID,
		&measurement.PollutantID,
		&measurement.MeasuredAt,
		&value,
		&measurement.ExternalID,
		&measurement.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if value.Valid {
		measurement.Value = &value.Float64
	}

	return measurement, nil
}

// Measurements returns all measurements, newest first.
func (r *MeasurementRepository) Measurements(ctx context.Context) ([]*models.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements ORDER BY measured_at DESC`

	return r.queryMeasurements(ctx, query)
}

// RecentMeasurements returns measurements taken at or after since, newest first.
func (r *MeasurementRepository) RecentMeasurements(ctx context.Context, since time.Time) ([]*models.Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE measured_at >= $1
		ORDER BY measured_at DESC
	`

	return r.queryMeasurements(ctx, query, since)
}

func (r *MeasurementRepository) queryMeasurements(ctx context.Context, query string, args ...any) ([]*models.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	defer func() { _ = rows.Close() }()

	measurements := make([]*models.Measurement, 0)

	for rows.Next() {
		measurement, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}

		measurements = append(measurements, measurement)
	}

	return measurements, rows.Err()
}

// MeasurementByID returns the measurement with the given id, or nil.
func (r *MeasurementRepository) MeasurementByID(ctx context.Context, id string) (*models.Measurement, error) {
	return r.measurementBy(ctx, "id", id)
}

// MeasurementByExternalID returns the measurement carrying the upstream
// identifier, or nil.
func (r *MeasurementRepository) MeasurementByExternalID(ctx context.Context, externalID string) (*models.Measurement, error) {
	return r.measurementBy(ctx, "external_id", externalID)
}

func (r *MeasurementRepository) measurementBy(ctx context.Context, column, value string) (*models.Measurement, error) {
	query := fmt.Sprintf(`SELECT %s FROM measurements WHERE %s = $1`, measurementColumns, column)

	measurement, err := scanMeasurement(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan measurement: %w", err)
	}

	return measurement, nil
}

// LatestMeasuredAt returns the newest stored measurement timestamp, or the
// zero time when none exist.
func (r *MeasurementRepository) LatestMeasuredAt(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime

	err := r.db.QueryRowContext(ctx, `SELECT MAX(measured_at) FROM measurements`).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest measurement timestamp: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, nil
	}

	return latest.Time, nil
}

// SaveMeasurement upserts by external id.
func (r *MeasurementRepository) SaveMeasurement(ctx context.Context, measurement *models.Measurement) error {
	if measurement.ID == "" {
		measurement.ID = uuid.New().String()
		measurement.CreatedAt = time.Now().UTC()
	}

	var value sql.NullFloat64
	if measurement.Value != nil {
		value = sql.NullFloat64{Float64: *measurement.Value, Valid: true}
	}

	query := `
		INSERT INTO measurements (` + measurementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			measured_at = EXCLUDED.measured_at,
			value = EXCLUDED.value
	`

	_, err := r.db.ExecContext(ctx, query,
		measurement.ID,
		measurement.SiteID,
		measurement.PollutantID,
		measurement.MeasuredAt,
		value,
		measurement.ExternalID,
		measurement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert measurement %q: %w", measurement.ExternalID, err)
	}

	return nil
}
