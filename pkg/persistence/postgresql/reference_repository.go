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

// ReferenceRepository handles region, site and pollutant database operations.
type ReferenceRepository struct {
	db *sql.DB
}

// NewReferenceRepository creates a new reference-data repository.
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// UpsertRegion creates or updates the region keyed by external id.
func (r *ReferenceRepository) UpsertRegion(ctx context.Context, region *models.Region) (*models.Region, error) {
	now := time.Now().UTC()

	if region.ID == "" {
		region.ID = uuid.New().String()
		region.CreatedAt = now
	}

	region.UpdatedAt = now

	query := `
		INSERT INTO regions (id, name, external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, external_id, created_at, updated_at
	`

	stored := &models.Region{}

	err := r.db.QueryRowContext(ctx, query, region.ID, region.Name, region.ExternalID, region.CreatedAt, region.UpdatedAt).
		Scan(&stored.ID, &stored.Name, &stored.ExternalID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert region %q: %w", region.ExternalID, err)
	}

	return stored, nil
}

// UpsertSite creates or updates the site keyed by external id.
func (r *ReferenceRepository) UpsertSite(ctx context.Context, site *models.Site) (*models.Site, error) {
	now := time.Now().UTC()

	if site.ID == "" {
		site.ID = uuid.New().String()
		site.CreatedAt = now
	}

	site.UpdatedAt = now

	query := `
		INSERT INTO sites (id, region_id, name, external_id, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			region_id = EXCLUDED.region_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
		RETURNING id, region_id, name, external_id, description, created_at, updated_at
	`

	stored := &models.Site{}

	err := r.db.QueryRowContext(ctx, query,
		site.ID, site.RegionID, site.Name, site.ExternalID, site.Description, site.CreatedAt, site.UpdatedAt).
		Scan(&stored.ID, &stored.RegionID, &stored.Name, &stored.ExternalID, &stored.Description, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert site %q: %w", site.ExternalID, err)
	}

	return stored, nil
}

// UpsertPollutant creates or updates the pollutant keyed by external id.
func (r *ReferenceRepository) UpsertPollutant(ctx context.Context, pollutant *models.Pollutant) (*models.Pollutant, error) {
	now := time.Now().UTC()

	if pollutant.ID == "" {
		pollutant.ID = uuid.New().String()
		pollutant.CreatedAt = now
	}

	pollutant.UpdatedAt = now

	query := `
		INSERT INTO pollutants (id, name, external_id, unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			unit = EXCLUDED.unit,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, external_id, unit, created_at, updated_at
	`

	stored := &models.Pollutant{}

	err := r.db.QueryRowContext(ctx, query,
		pollutant.ID, pollutant.Name, pollutant.ExternalID, pollutant.Unit, pollutant.CreatedAt, pollutant.UpdatedAt).
		Scan(&stored.ID, &stored.Name, &stored.ExternalID, &stored.Unit, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pollutant %q: %w", pollutant.ExternalID, err)
	}

	return stored, nil
}

// Sites returns all monitoring sites ordered by name.
func (r *ReferenceRepository) Sites(ctx context.Context) ([]*models.Site, error) {
	query := `SELECT id, region_id, name, external_id, description, created_at, updated_at FROM sites ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}

	defer func() { _ = rows.Close() }()

	sites := make([]*models.Site, 0)

	for rows.Next() {
		site := &models.Site{}

		err = rows.Scan(&site.ID, &site.RegionID, &site.Name, &site.ExternalID, &site.Description, &site.CreatedAt, &site.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}

		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// SiteByExternalID returns the site carrying the upstream identifier, or nil.
func (r *ReferenceRepository) SiteByExternalID(ctx context.Context, externalID string) (*models.Site, error) {
	query := `SELECT id, region_id, name, external_id, description, created_at, updated_at FROM sites WHERE external_id = $1`

	site := &models.Site{}

	err := r.db.QueryRowContext(ctx, query, externalID).
		Scan(&site.ID, &site.RegionID, &site.Name, &site.ExternalID, &site.Description, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan site: %w", err)
	}

	return site, nil
}

// Pollutants returns all pollutants ordered by name.
func (r *ReferenceRepository) Pollutants(ctx context.Context) ([]*models.Pollutant, error) {
	query := `SELECT id, name, external_id, unit, created_at, updated_at FROM pollutants ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pollutants: %w", err)
	}

	defer func() { _ = rows.Close() }()

	pollutants := make([]*models.Pollutant, 0)

	for rows.Next() {
		pollutant := &models.Pollutant{}

		err = rows.Scan(&pollutant.ID, &pollutant.Name, &pollutant.ExternalID, &pollutant.Unit, &pollutant.CreatedAt, &pollutant.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pollutant: %w", err)
		}

		pollutants = append(pollutants, pollutant)
	}

	return pollutants, rows.Err()
}

// PollutantByExternalID returns the pollutant carrying the upstream
// identifier, or nil.
func (r *ReferenceRepository) PollutantByExternalID(ctx context.Context, externalID string) (*models.Pollutant, error) {
	query := `SELECT id, name, external_id, unit, created_at, updated_at FROM pollutants WHERE external_id = $1`

	pollutant := &models.Pollutant{}

	err := r.db.QueryRowContext(ctx, query, externalID).
		Scan(&pollutant.ID, &pollutant.Name, &pollutant.ExternalID, &pollutant.Unit, &pollutant.CreatedAt, &pollutant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan pollutant: %w", err)
	}

	return pollutant, nil
}
