package models

import (
	"strings"
	"time"
)

const PlatformTwitter = "twitter"

// Connection holds an account's per-platform publishing addresses and credentials,
// keyed by lowercased platform name.
type Connection struct {
	AccountID string                        `json:"account_id"`
	Platforms map[string]PlatformConnection `json:"platforms"`
}

type PlatformConnection struct {
	Platform          string    `db:"platform" json:"platform"`
	WebhookURL        string    `db:"webhook_url" json:"webhook_url,omitempty"`
	PageID            string    `db:"page_id" json:"page_id,omitempty"`
	APIKey            string    `db:"api_key" json:"-"`
	APISecret         string    `db:"api_secret" json:"-"`
	AccessToken       string    `db:"access_token" json:"-"`
	AccessTokenSecret string    `db:"access_token_secret" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsNativePlatform reports whether platform is published through the signed upload protocol
// instead of a webhook relay.
func IsNativePlatform(platform string) bool {
	switch strings.ToLower(platform) {
	case PlatformTwitter, "x":
		return true
	}
	return false
}

// Lookup returns the sub-record for platform, matching case-insensitively.
func (c *Connection) Lookup(platform string) (PlatformConnection, bool) {
	if c == nil || c.Platforms == nil {
		return PlatformConnection{}, false
	}
	pc, ok := c.Platforms[strings.ToLower(platform)]
	return pc, ok
}
