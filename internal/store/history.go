package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/demystify-app/demystify-api/internal/models"
	"gorm.io/gorm"
)

// HistoryStore persists analysis results per user.
type HistoryStore struct {
	db      *gorm.DB
	codec   Codec
	timeout time.Duration
}

// NewHistoryStore constructs a HistoryStore. Append is bounded by timeout.
func NewHistoryStore(db *gorm.DB, codec Codec, timeout time.Duration) *HistoryStore {
	return &HistoryStore{db: db, codec: codec, timeout: timeout}
}

// Append inserts record inside a transaction bounded by the store timeout.
// The transaction is rolled back when the deadline passes before commit.
func (s *HistoryStore) Append(ctx context.Context, record *models.Analysis) error {
	if record == nil {
		return fmt.Errorf("history store: record is nil")
	}
	row := *record
	sealed, errSeal := s.codec.Encrypt(row.OriginalText)
	if errSeal != nil {
		return fmt.Errorf("history store: encrypt text: %w", errSeal)
	}
	row.OriginalText = sealed
	row.User = models.User{}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Omit("User").Create(&row).Error; errCreate != nil {
			return errCreate
		}
		return ctx.Err()
	})
	if errTx != nil {
		return fmt.Errorf("history store: append: %w", errTx)
	}
	record.ID = row.ID
	record.CreatedAt = row.CreatedAt
	return nil
}

// ListByUser returns one page of a user's history, newest first, and the total count.
func (s *HistoryStore) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Analysis, int64, error) {
	var total int64
	if errCount := s.db.WithContext(ctx).Model(&models.Analysis{}).Where("user_id = ?", userID).Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("history store: count: %w", errCount)
	}

	var rows []models.Analysis
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("history store: list: %w", errFind)
	}
	for i := range rows {
		rows[i].OriginalText = decryptOrRaw(s.codec, "original_text", rows[i].OriginalText)
	}
	return rows, total, nil
}

// Get loads one history record.
func (s *HistoryStore) Get(ctx context.Context, id uint64) (*models.Analysis, error) {
	var row models.Analysis
	errFind := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("history store: get: %w", errFind)
	}
	row.OriginalText = decryptOrRaw(s.codec, "original_text", row.OriginalText)
	return &row, nil
}

// Delete removes one history record.
func (s *HistoryStore) Delete(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Analysis{})
	if res.Error != nil {
		return fmt.Errorf("history store: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reencrypt seals history text still stored in plaintext.
func (s *HistoryStore) Reencrypt(ctx context.Context) (int, error) {
	var rows []models.Analysis
	if errFind := s.db.WithContext(ctx).Select("id", "original_text").Order("id ASC").Find(&rows).Error; errFind != nil {
		return 0, fmt.Errorf("history store: list: %w", errFind)
	}
	updated := 0
	for _, row := range rows {
		if row.OriginalText == "" || isSealed(row.OriginalText) {
			continue
		}
		sealed, errSeal := s.codec.Encrypt(row.OriginalText)
		if errSeal != nil {
			return updated, fmt.Errorf("history store: encrypt record %d: %w", row.ID, errSeal)
		}
		if errUpdate := s.db.WithContext(ctx).Model(&models.Analysis{}).Where("id = ?", row.ID).Update("original_text", sealed).Error; errUpdate != nil {
			return updated, fmt.Errorf("history store: update record %d: %w", row.ID, errUpdate)
		}
		updated++
	}
	return updated, nil
}
