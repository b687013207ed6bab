package models

import "time"

// OAuthSession is an issued handshake state token together with its PKCE
// verifier. Rows are single use: the callback deletes the row it accepts.
type OAuthSession struct {
	ID           int       `json:"id" gorm:"primaryKey;autoIncrement"`
	State        string    `json:"-" gorm:"uniqueIndex;not null"`
	CodeVerifier string    `json:"-" gorm:"not null"`
	OwnerHint    string    `json:"owner_hint" gorm:"not null;default:''"`
	RedirectURI  string    `json:"redirect_uri" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index;not null"`
}

// TableName specifies the table name for OAuthSession
func (OAuthSession) TableName() string {
	return "oauth_sessions"
}
