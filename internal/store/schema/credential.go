package schema

import "time"

// Credential represents the credentials table - access tokens for the
// subscription feed. Credentials are never deleted, only deactivated.
type Credential struct {
	// Token is the opaque access token string
	Token string `gorm:"column:token;primaryKey;type:text"`
	// Active indicates whether the credential can still be used
	Active bool `gorm:"column:active;not null;default:true"`
	// UsageCount is the number of successful subscriptions with this token
	UsageCount int64 `gorm:"column:usage_count;not null;default:0"`
	// LastUsed is the timestamp of the most recent successful subscription
	LastUsed *time.Time `gorm:"column:last_used"`
	// CreatedAt is the timestamp when the credential was provisioned
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is the timestamp of the last mutation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Credential model
func (Credential) TableName() string {
	return "credentials"
}
