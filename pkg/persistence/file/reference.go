package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

const (
	regionCollection    = "regions"
	siteCollection      = "sites"
	pollutantCollection = "pollutants"
)

// ReferenceRepository handles region, site and pollutant file operations.
type ReferenceRepository struct {
	root string
	mu   sync.Mutex
}

// NewReferenceRepository creates a new reference-data repository.
func NewReferenceRepository(root string) *ReferenceRepository {
	return &ReferenceRepository{root: root}
}

// UpsertRegion creates or updates the region keyed by external id.
func (rr *ReferenceRepository) UpsertRegion(_ context.Context, region *models.Region) (*models.Region, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	regions, err := readCollection[models.Region](rr.root, regionCollection)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	for _, existing := range regions {
		if existing.ExternalID == region.ExternalID {
			existing.Name = region.Name
			existing.UpdatedAt = now

			return existing, writeRecord(rr.root, regionCollection, existing.ID, existing)
		}
	}

	region.ID = uuid.New().String()
	region.CreatedAt = now
	region.UpdatedAt = now

	return region, writeRecord(rr.root, regionCollection, region.ID, region)
}

// UpsertSite creates or updates the site keyed by external id.
func (rr *ReferenceRepository) UpsertSite(ctx context.Context, site *models.Site) (*models.Site, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	existing, err := rr.siteByExternalID(ctx, site.ExternalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing != nil {
		existing.Name = site.Name
		existing.RegionID = site.RegionID
		existing.Description = site.Description
		existing.UpdatedAt = now

		return existing, writeRecord(rr.root, siteCollection, existing.ID, existing)
	}

	site.ID = uuid.New().String()
	site.CreatedAt = now
	site.UpdatedAt = now

	return site, writeRecord(rr.root, siteCollection, site.ID, site)
}

// UpsertPollutant creates or updates the pollutant keyed by external id.
func (rr *ReferenceRepository) UpsertPollutant(ctx context.Context, pollutant *models.Pollutant) (*models.Pollutant, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	existing, err := rr.PollutantByExternalID(ctx, pollutant.ExternalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing != nil {
		existing.Name = pollutant.Name
		existing.Unit = pollutant.Unit
		existing.UpdatedAt = now

		return existing, writeRecord(rr.root, pollutantCollection, existing.ID, existing)
	}

	pollutant.ID = uuid.New().String()
	pollutant.CreatedAt = now
	pollutant.UpdatedAt = now

	return pollutant, writeRecord(rr.root, pollutantCollection, pollutant.ID, pollutant)
}

// Sites returns all monitoring sites ordered by name.
func (rr *ReferenceRepository) Sites(_ context.Context) ([]*models.Site, error) {
	sites, err := readCollection[models.Site](rr.root, siteCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })

	return sites, nil
}

// SiteByExternalID returns the site carrying the upstream identifier, or nil.
func (rr *ReferenceRepository) SiteByExternalID(ctx context.Context, externalID string) (*models.Site, error) {
	return rr.siteByExternalID(ctx, externalID)
}

func (rr *ReferenceRepository) siteByExternalID(ctx context.Context, externalID string) (*models.Site, error) {
	sites, err := rr.Sites(ctx)
	if err != nil {
		return nil, err
	}

	for _, site := range sites {
		if site.ExternalID == externalID {
			return site, nil
		}
	}

	return nil, nil
}

// Pollutants returns all pollutants ordered by name.
func (rr *ReferenceRepository) Pollutants(_ context.Context) ([]*models.Pollutant, error) {
	pollutants, err := readCollection[models.Pollutant](rr.root, pollutantCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(pollutants, func(i, j int) bool { return pollutants[i].Name < pollutants[j].Name })

	return pollutants, nil
}

// PollutantByExternalID returns the pollutant carrying the upstream
// identifier, or nil.
func (rr *ReferenceRepository) PollutantByExternalID(ctx context.Context, externalID string) (*models.Pollutant, error) {
	pollutants, err := rr.Pollutants(ctx)
	if err != nil {
		return nil, err
	}

	for _, pollutant := range pollutants {
		if pollutant.ExternalID == externalID {
			return pollutant, nil
		}
	}

	return nil, nil
}
