package models

import (
	"time"
)

type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccountMetadata is the platform data cached when the account was connected.
type AccountMetadata struct {
	Boards []Board `json:"boards,omitempty"`
}

type SocialAccount struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Platform        Platform        `db:"platform" json:"platform"`
	AccountID       string          `db:"account_id" json:"account_id"`
	AccountName     string          `db:"account_name" json:"account_name"`
	AccountUsername string          `db:"account_username" json:"account_username"`
	AccessToken     string          `db:"access_token" json:"-"`
	RefreshToken    string          `db:"refresh_token" json:"-"`
	TokenExpiresAt  *time.Time      `db:"token_expires_at" json:"token_expires_at"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	Metadata        AccountMetadata `db:"metadata" json:"metadata"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Credential is a live, decrypted access credential for one connected account.
type Credential struct {
	AccessToken string
	// ExternalAccountID is the platform's own id of the connected account.
	ExternalAccountID string
	Metadata          AccountMetadata
}
