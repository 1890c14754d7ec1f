package dedupe

import (
	"strings"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// Rule is one entry of the static, prioritized match-rule table.
// The table is process-wide configuration and never mutated at runtime.
type Rule struct {
	// Type is the duplicate type recorded when this rule matches
	Type domain.DuplicateType
	// Field is the token_records column this rule matches on
	Field store.MatchField
	// Priority orders the rules, highest wins
	Priority int
	// Validate gates the rule: a value failing validation skips the rule
	Validate func(value string) bool
}

// DefaultRules is the rule table in priority order, highest first:
// a shared tweet reference beats a shared symbol beats a shared name.
var DefaultRules = []Rule{
	{
		Type:     domain.DuplicateTypeTwitterStatus,
		Field:    store.MatchFieldTwitter,
		Priority: 3,
		Validate: hasStatusReference,
	},
	{
		Type:     domain.DuplicateTypeSymbol,
		Field:    store.MatchFieldSymbol,
		Priority: 2,
		Validate: nonEmpty,
	},
	{
		Type:     domain.DuplicateTypeName,
		Field:    store.MatchFieldName,
		Priority: 1,
		Validate: nonEmpty,
	},
}

// extract returns the rule's field value from a record
func extract(record *schema.TokenRecord, field store.MatchField) string {
	switch field {
	case store.MatchFieldTwitter:
		return record.TwitterURL
	case store.MatchFieldSymbol:
		return record.Symbol
	case store.MatchFieldName:
		return record.Name
	default:
		return ""
	}
}

func nonEmpty(value string) bool {
	return strings.TrimSpace(value) != ""
}

// hasStatusReference reports whether a twitter link points at a concrete
// tweet. A bare profile link (twitter.com/someuser) is too weak a signal.
func hasStatusReference(value string) bool {
	return strings.Contains(strings.ToLower(value), "/status/")
}
