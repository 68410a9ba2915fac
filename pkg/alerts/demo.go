package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
)

const demoRulePrefix = "demo-alert"

// demoThresholdFactor places each demo threshold just under the latest
// reading so the next comparable measurement trips it.
const demoThresholdFactor = 0.9

// DemoSeeder creates demonstration alert rules from whatever measurements are
// already stored, one rule per (site, pollutant) pair.
type DemoSeeder struct {
	rules        persistence.RuleRepository
	measurements persistence.MeasurementRepository
	reference    persistence.ReferenceRepository
	logger       *slog.Logger
}

// NewDemoSeeder creates a demo rule seeder.
func NewDemoSeeder(store persistence.Persistence, logger *slog.Logger) *DemoSeeder {
	return &DemoSeeder{
		rules:        store.RuleRepository(),
		measurements: store.MeasurementRepository(),
		reference:    store.ReferenceRepository(),
		logger:       logger,
	}
}

// DemoRuleExternalID derives the stable external id a demo rule is keyed by.
func DemoRuleExternalID(siteID, pollutantID string) string {
	return fmt.Sprintf("%s|%s|%s", demoRulePrefix, siteID, pollutantID)
}

// EnsureDemoRules walks stored measurements newest first and guarantees a
// demo rule for up to maxRules distinct (site, pollutant) pairs. Each rule
// triggers above 90% of the pair's latest value. Re-running reuses existing
// rules instead of duplicating them.
func (d *DemoSeeder) EnsureDemoRules(ctx context.Context, maxRules int) ([]*models.AlertRule, error) {
	measurements, err := d.measurements.Measurements(ctx)
	if err != nil {
		return nil, err
	}

	siteNames, pollutantNames, err := d.referenceNames(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	rules := make([]*models.AlertRule, 0, maxRules)

	for _, measurement := range measurements {
		if len(rules) >= maxRules {
			break
		}

		if !measurement.HasValue() {
			continue
		}

		externalID := DemoRuleExternalID(measurement.SiteID, measurement.PollutantID)
		if seen[externalID] {
			continue
		}

		seen[externalID] = true

		rule, err := d.ensureRule(ctx, externalID, measurement, siteNames, pollutantNames)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	d.logger.InfoContext(ctx, "demo rules ensured", "count", len(rules))

	return rules, nil
}

func (d *DemoSeeder) ensureRule(
	ctx context.Context,
	externalID string,
	measurement *models.Measurement,
	siteNames, pollutantNames map[string]string,
) (*models.AlertRule, error) {
	existing, err := d.rules.RuleByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return existing, nil
	}

	siteName := siteNames[measurement.SiteID]
	if siteName == "" {
		siteName = measurement.SiteID
	}

	pollutantName := pollutantNames[measurement.PollutantID]
	if pollutantName == "" {
		pollutantName = measurement.PollutantID
	}

	rule := &models.AlertRule{
		SiteID:      measurement.SiteID,
		PollutantID: measurement.PollutantID,
		Name:        fmt.Sprintf("Demo: %s at %s", pollutantName, siteName),
		ExternalID:  externalID,
		Threshold:   *measurement.Value * demoThresholdFactor,
		Comparison:  models.ComparisonAbove,
		Active:      true,
	}

	err = d.rules.SaveRule(ctx, rule)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

func (d *DemoSeeder) referenceNames(ctx context.Context) (map[string]string, map[string]string, error) {
	sites, err := d.reference.Sites(ctx)
	if err != nil {
		return nil, nil, err
	}

	pollutants, err := d.reference.Pollutants(ctx)
	if err != nil {
		return nil, nil, err
	}

	siteNames := make(map[string]string, len(sites))
	for _, site := range sites {
		siteNames[site.ID] = site.Name
	}

	pollutantNames := make(map[string]string, len(pollutants))
	for _, pollutant := range pollutants {
		pollutantNames[pollutant.ID] = pollutant.Name
	}

	return siteNames, pollutantNames, nil
}
