package domain

import "time"

// DuplicateType identifies which match rule placed a record into its
// duplicate group. Values are ordered by rule priority, highest first.
type DuplicateType string

const (
	// DuplicateTypeTwitterStatus means the records share a twitter link
	// that references a concrete tweet (a "/status/" URL)
	DuplicateTypeTwitterStatus DuplicateType = "twitter_status"
	// DuplicateTypeSymbol means the records share a token symbol
	DuplicateTypeSymbol DuplicateType = "symbol_match"
	// DuplicateTypeName means the records share a token name
	DuplicateTypeName DuplicateType = "name_match"
)

// TokenCreationEvent is the as-received payload for one token creation
// instruction observed on the feed. It is immutable once received and lives
// only in the ingest buffer until enrichment picks it up.
type TokenCreationEvent struct {
	// MintAddress is the mint account of the newly created token
	MintAddress string `json:"mint"`
	// SignerAddress is the wallet that signed the creation transaction
	SignerAddress string `json:"signer"`
	// BlockTime is the on-chain timestamp of the creation
	BlockTime time.Time `json:"blockTime"`
	// Name is the token name argument of the creation instruction
	Name string `json:"name"`
	// Symbol is the token symbol argument of the creation instruction
	Symbol string `json:"symbol"`
	// MetadataURI points at the off-chain metadata document (usually ipfs://)
	MetadataURI string `json:"uri"`
}

// SocialLinks holds the social references extracted from token metadata
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Website  string `json:"website,omitempty"`
}

// TokenMetadata is the normalized off-chain metadata document
type TokenMetadata struct {
	URI         string      `json:"uri"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	Social      SocialLinks `json:"social"`
}
