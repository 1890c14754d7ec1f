package dedupe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// DetectorConfig holds configuration for the duplicate detector
type DetectorConfig struct {
	// Window is the trailing time window searched for matches
	Window time.Duration
}

// Detector assigns enriched records to duplicate groups. It walks the rule
// table from highest to lowest priority and stops on the first rule that
// yields a match; lower-priority rules are never consulted after a hit.
type Detector struct {
	store  store.Store
	clock  adapter.Clock
	config DetectorConfig
	rules  []Rule
}

// NewDetector creates a detector over the default rule table
func NewDetector(st store.Store, clock adapter.Clock, config DetectorConfig) *Detector {
	return NewDetectorWithRules(st, clock, config, DefaultRules)
}

// NewDetectorWithRules creates a detector over a custom rule table.
// Rules are evaluated in descending priority order regardless of slice order.
func NewDetectorWithRules(st store.Store, clock adapter.Clock, config DetectorConfig, rules []Rule) *Detector {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return &Detector{
		store:  st,
		clock:  clock,
		config: config,
		rules:  ordered,
	}
}

// Classify searches the store for records matching rec under the rule table
// and assigns a duplicate group on the first hit. Both the new record (in
// memory, persisted by the caller) and all existing members sharing the
// matched value are rewritten with the same group and type.
//
// A store failure on one rule is logged and the remaining rules are still
// attempted. No match leaves the record ungrouped.
func (d *Detector) Classify(ctx context.Context, rec *schema.TokenRecord) error {
	since := d.clock.Now().Add(-d.config.Window)

	for _, rule := range d.rules {
		value := extract(rec, rule.Field)
		if !rule.Validate(value) {
			continue
		}

		matches, err := d.store.FindMatching(ctx, rule.Field, value, rec.Mint, since)
		if err != nil {
			// Classification must not fail the record over one bad query
			logger.ErrorCtx(ctx, fmt.Errorf("match query failed for rule %s: %w", rule.Type, err),
				zap.String("mint", rec.Mint))
			continue
		}
		if len(matches) == 0 {
			continue
		}

		group, err := d.resolveGroup(ctx, matches)
		if err != nil {
			return fmt.Errorf("failed to resolve group for %s: %w", rec.Mint, err)
		}

		dupType := rule.Type
		rec.DuplicateGroup = &group
		rec.DuplicateType = &dupType

		if _, err := d.store.AssignGroup(ctx, rule.Field, value, since, group, dupType); err != nil {
			return fmt.Errorf("failed to propagate group %d: %w", group, err)
		}

		logger.DebugCtx(ctx, "Duplicate group assigned",
			zap.String("mint", rec.Mint),
			zap.Int64("group", group),
			zap.String("type", string(dupType)),
			zap.Int("existing_members", len(matches)))

		// First matching rule wins
		return nil
	}

	return nil
}

// resolveGroup reuses the group of an already-grouped match, otherwise
// allocates the next group number. Two near-simultaneous records referencing
// each other may both see no existing group and allocate two groups; that
// race is accepted and not reconciled.
func (d *Detector) resolveGroup(ctx context.Context, matches []*schema.TokenRecord) (int64, error) {
	for _, m := range matches {
		if m.DuplicateGroup != nil {
			return *m.DuplicateGroup, nil
		}
	}
	return d.store.NextGroupNumber(ctx)
}
