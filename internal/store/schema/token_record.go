package schema

import (
	"time"

	"github.com/tokenlens/mint-indexer/internal/domain"
)

// TokenRecord represents the token_records table - one row per observed mint.
// Mint is the primary key: re-arrival of the same mint upserts the row.
type TokenRecord struct {
	// Mint is the mint account address of the token
	Mint string `gorm:"column:mint;primaryKey;type:text"`
	// Signer is the wallet that signed the creation transaction
	Signer string `gorm:"column:signer;not null;type:text"`
	// Timestamp is the on-chain creation time
	Timestamp time.Time `gorm:"column:timestamp;not null;index"`
	// Name is the token name from the creation instruction
	Name string `gorm:"column:name;type:text;index:idx_token_records_name"`
	// Symbol is the token symbol from the creation instruction
	Symbol string `gorm:"column:symbol;type:text;index:idx_token_records_symbol"`
	// MetadataURI points at the off-chain metadata document
	MetadataURI string `gorm:"column:metadata_uri;type:text"`
	// Description comes from the resolved metadata document
	Description string `gorm:"column:description;type:text"`
	// Image is the canonical gateway URL of the token image
	Image string `gorm:"column:image;type:text"`
	// TwitterURL is the twitter/x link from the metadata document
	TwitterURL string `gorm:"column:twitter_url;type:text;index:idx_token_records_twitter"`
	// TelegramURL is the telegram link from the metadata document
	TelegramURL string `gorm:"column:telegram_url;type:text"`
	// WebsiteURL is the website link from the metadata document
	WebsiteURL string `gorm:"column:website_url;type:text"`
	// DuplicateGroup is the duplicate equivalence class, nil when ungrouped
	DuplicateGroup *int64 `gorm:"column:duplicate_group;index"`
	// DuplicateType records which rule assigned the group
	DuplicateType *domain.DuplicateType `gorm:"column:duplicate_type;type:text"`
	// CreatedAt is the timestamp when this record was first persisted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is the timestamp of the last upsert
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the TokenRecord model
func (TokenRecord) TableName() string {
	return "token_records"
}
