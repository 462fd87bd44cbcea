package models

import "time"

// OAuth provider identifiers stored on User.
const (
	// ProviderLocal marks password-registered accounts.
	ProviderLocal = ""
	// ProviderGoogle marks accounts created through Google login.
	ProviderGoogle = "google"
)

// User represents an end-user account stored in the database.
// Email and FullName hold ciphertext; see security.FieldCipher.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username  string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email     string `gorm:"type:text;not null"`             // Encrypted email address.
	EmailHash string `gorm:"type:text;not null;uniqueIndex"` // Keyed digest of the normalized email.
	Password  string `gorm:"type:text;not null"`             // Hashed password.
	FullName  string `gorm:"type:text"`                      // Encrypted display name.

	Active  bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	IsAdmin bool `gorm:"not null;default:false"` // Grants admin-only endpoints.

	OAuthProvider string `gorm:"type:text"` // External identity provider, empty for local accounts.
	OAuthID       string `gorm:"type:text"` // Subject id at the provider.

	EmailVerified            bool       `gorm:"not null;default:false"` // Whether the email was confirmed.
	VerificationToken        string     `gorm:"type:text;index"`        // Pending verification token.
	VerificationTokenExpires *time.Time // Verification token expiry.

	LastLoginAt *time.Time // Last successful login.

	Analyses []Analysis `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Owned analysis history.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
