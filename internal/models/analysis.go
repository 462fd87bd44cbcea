package models

import (
	"time"

	"gorm.io/datatypes"
)

// Analysis records one completed task breakdown in a user's history.
type Analysis struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	OriginalText string `gorm:"type:text;not null"` // Encrypted request text.

	Steps       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Concrete steps.
	Ambiguities datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Detected ambiguities.
	Questions   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Suggested clarifying questions.

	ProcessingTimeMS int64 `gorm:"not null;default:0"`     // Time spent producing the result.
	Cached           bool  `gorm:"not null;default:false"` // Whether the result came from cache.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
