package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

const ruleCollection = "rules"

// RuleRepository handles alert rule file operations.
type RuleRepository struct {
	root string
	mu   sync.Mutex
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(root string) *RuleRepository {
	return &RuleRepository{root: root}
}

// Rules returns all stored rules ordered by name.
func (rr *RuleRepository) Rules(_ context.Context) ([]*models.AlertRule, error) {
	rules, err := readCollection[models.AlertRule](rr.root, ruleCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	return rules, nil
}

// RuleByID returns the rule with the given id, or nil when absent.
func (rr *RuleRepository) RuleByID(_ context.Context, id string) (*models.AlertRule, error) {
	rule := &models.AlertRule{}

	found, err := readRecord(rr.root, ruleCollection, id, rule)
	if err != nil || !found {
		return nil, err
	}

	return rule, nil
}

// RuleByExternalID returns the rule carrying the upstream identifier, or nil.
func (rr *RuleRepository) RuleByExternalID(ctx context.Context, externalID string) (*models.AlertRule, error) {
	rules, err := rr.Rules(ctx)
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if rule.ExternalID == externalID {
			return rule, nil
		}
	}

	return nil, nil
}

// ActiveRulesFor returns enabled rules for the (site, pollutant) pair.
func (rr *RuleRepository) ActiveRulesFor(ctx context.Context, siteID, pollutantID string) ([]*models.AlertRule, error) {
	rules, err := rr.Rules(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.AlertRule, 0, len(rules))

	for _, rule := range rules {
		if rule.Active && rule.SiteID == siteID && rule.PollutantID == pollutantID {
			out = append(out, rule)
		}
	}

	return out, nil
}

// SaveRule upserts the rule.
func (rr *RuleRepository) SaveRule(_ context.Context, rule *models.AlertRule) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := time.Now().UTC()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	return writeRecord(rr.root, ruleCollection, rule.ID, rule)
}
