package models

import "time"

// CredentialEncodingV1 marks secrets sealed by crypto.Cipher format 1.
const CredentialEncodingV1 = 1

// Credential is the at-rest form of a provider credential pair. Both secrets
// are sealed; Expiry is nil when the provider did not report one.
type Credential struct {
	Identity        string     `json:"identity" gorm:"primaryKey"`
	AccessSecret    string     `json:"-" gorm:"not null"`
	RefreshSecret   string     `json:"-" gorm:"not null"`
	Expiry          *time.Time `json:"expiry"`
	EncodingVersion int        `json:"encoding_version" gorm:"not null;default:1"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Credential
func (Credential) TableName() string {
	return "credentials"
}
