package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/otelhelper"
	"github.com/aqwatch/aqwatch/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// SyncStats counts what one sync pass touched.
type SyncStats struct {
	Regions      int `json:"regions"`
	Sites        int `json:"sites"`
	Pollutants   int `json:"pollutants"`
	Measurements int `json:"measurements"`
	Skipped      int `json:"skipped"`
}

// Syncer pulls reference data and measurements from the upstream API into the
// local store. Every write is an upsert keyed by external id, so repeated
// passes converge instead of duplicating.
type Syncer struct {
	client       *Client
	reference    persistence.ReferenceRepository
	measurements persistence.MeasurementRepository
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewSyncer creates a syncer over the upstream client and the local store.
func NewSyncer(client *Client, store persistence.Persistence, logger *slog.Logger) *Syncer {
	return &Syncer{
		client:       client,
		reference:    store.ReferenceRepository(),
		measurements: store.MeasurementRepository(),
		logger:       logger,
		tracer:       otel.Tracer("aqwatch/ingest"),
	}
}

// Sync runs one full pass: locations first, so every measurement lands on an
// existing site and pollutant, then measurements newer than the latest one
// already stored.
func (s *Syncer) Sync(ctx context.Context) (*SyncStats, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "ingest.sync")
	defer span.End()

	stats := &SyncStats{}

	sites, err := s.syncLocations(ctx, stats)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	since, err := s.measurements.LatestMeasuredAt(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	for locationID, site := range sites {
		err = s.syncMeasurements(ctx, locationID, site, since, stats)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "sync pass finished",
		"regions", stats.Regions,
		"sites", stats.Sites,
		"pollutants", stats.Pollutants,
		"measurements", stats.Measurements,
		"skipped", stats.Skipped,
	)

	return stats, nil
}

// syncLocations upserts regions, sites and pollutants and returns the sites
// indexed by upstream location id.
func (s *Syncer) syncLocations(ctx context.Context, stats *SyncStats) (map[int64]*models.Site, error) {
	locations, err := s.client.Locations(ctx)
	if err != nil {
		return nil, err
	}

	regions := make(map[string]*models.Region)
	sites := make(map[int64]*models.Site, len(locations))

	for _, location := range locations {
		region, seen := regions[location.Country.Code]
		if !seen {
			region, err = s.reference.UpsertRegion(ctx, &models.Region{
				Name:       location.Country.Name,
				ExternalID: location.Country.Code,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to upsert region %q: %w", location.Country.Code, err)
			}

			regions[location.Country.Code] = region
			stats.Regions++
		}

		site, err := s.reference.UpsertSite(ctx, &models.Site{
			RegionID:   region.ID,
			Name:       location.Name,
			ExternalID: strconv.FormatInt(location.ID, 10),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert site %q: %w", location.Name, err)
		}

		sites[location.ID] = site
		stats.Sites++

		for _, sensor := range location.Sensors {
			_, err = s.upsertPollutant(ctx, sensor.Parameter, stats)
			if err != nil {
				return nil, err
			}
		}
	}

	return sites, nil
}

func (s *Syncer) syncMeasurements(ctx context.Context, locationID int64, site *models.Site, since time.Time, stats *SyncStats) error {
	records, err := s.client.Measurements(ctx, locationID, since)
	if err != nil {
		return fmt.Errorf("failed to fetch measurements for site %q: %w", site.Name, err)
	}

	for _, record := range records {
		pollutant, err := s.reference.PollutantByExternalID(ctx, record.Parameter.Code)
		if err != nil {
			return err
		}

		if pollutant == nil {
			// The upstream reported a parameter its location listing did not
			// declare. Register it rather than dropping the fact.
			pollutant, err = s.upsertPollutant(ctx, record.Parameter, stats)
			if err != nil {
				return err
			}
		}

		if record.Datetime.UTC.IsZero() {
			stats.Skipped++

			continue
		}

		err = s.measurements.SaveMeasurement(ctx, &models.Measurement{
			SiteID:      site.ID,
			PollutantID: pollutant.ID,
			MeasuredAt:  record.Datetime.UTC,
			Value:       record.Value,
			ExternalID:  recordExternalID(record),
		})
		if err != nil {
			return fmt.Errorf("failed to save measurement for site %q: %w", site.Name, err)
		}

		stats.Measurements++
	}

	return nil
}

func (s *Syncer) upsertPollutant(ctx context.Context, parameter Parameter, stats *SyncStats) (*models.Pollutant, error) {
	pollutant, err := s.reference.UpsertPollutant(ctx, &models.Pollutant{
		Name:       parameter.Name,
		ExternalID: parameter.Code,
		Unit:       parameter.Units,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pollutant %q: %w", parameter.Code, err)
	}

	stats.Pollutants++

	return pollutant, nil
}

func recordExternalID(record Record) string {
	if record.ID != 0 {
		return strconv.FormatInt(record.ID, 10)
	}

	return fmt.Sprintf("%d-%d-%d", record.LocationID, record.SensorID, record.Datetime.UTC.Unix())
}
