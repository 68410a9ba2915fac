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

// RuleRepository handles alert rule database operations.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, site_id, pollutant_id, name, external_id, threshold, comparison, active, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*models.AlertRule, error) {
	rule := &models.AlertRule{}

	err := row.Scan(
		&rule.ID,
		&rule.SiteID,
		&rule.PollutantID,
		&rule.Name,
		&rule.ExternalID,
		&rule.Threshold,
		&rule.Comparison,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

// Rules returns all rules ordered by name.
func (r *RuleRepository) Rules(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY name`

	return r.queryRules(ctx, query)
}

// ActiveRulesFor returns enabled rules for the (site, pollutant) pair.
func (r *RuleRepository) ActiveRulesFor(ctx context.Context, siteID, pollutantID string) ([]*models.AlertRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM alert_rules
		WHERE active AND site_id = $1 AND pollutant_id = $2
		ORDER BY name
	`

	return r.queryRules(ctx, query, siteID, pollutantID)
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer func() { _ = rows.Close() }()

	rules := make([]*models.AlertRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// RuleByID returns the rule with the given id, or nil when absent.
func (r *RuleRepository) RuleByID(ctx context.Context, id string) (*models.AlertRule, error) {
	return r.ruleBy(ctx, "id", id)
}

// RuleByExternalID returns the rule carrying the upstream identifier, or nil.
func (r *RuleRepository) RuleByExternalID(ctx context.Context, externalID string) (*models.AlertRule, error) {
	return r.ruleBy(ctx, "external_id", externalID)
}

func (r *RuleRepository) ruleBy(ctx context.Context, column, value string) (*models.AlertRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM alert_rules WHERE %s = $1`, ruleColumns, column)

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

// SaveRule upserts the rule by id.
func (r *RuleRepository) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now().UTC()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			threshold = EXCLUDED.threshold,
			comparison = EXCLUDED.comparison,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.SiteID,
		rule.PollutantID,
		rule.Name,
		rule.ExternalID,
		rule.Threshold,
		rule.Comparison,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %q: %w", rule.Name, err)
	}

	return nil
}
