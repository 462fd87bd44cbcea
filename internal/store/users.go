package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/demystify-app/demystify-api/internal/models"
	"gorm.io/gorm"
)

// UserStore reads and writes user accounts.
type UserStore struct {
	db    *gorm.DB
	codec Codec
}

// NewUserStore constructs a UserStore.
func NewUserStore(db *gorm.DB, codec Codec) *UserStore {
	return &UserStore{db: db, codec: codec}
}

// Create inserts user. Email and FullName are given in plaintext; on success
// user.ID is set and the plaintext fields are left untouched.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user store: user is nil")
	}
	digest := s.codec.EmailDigest(user.Email)

	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; errCount != nil {
		return fmt.Errorf("user store: check username: %w", errCount)
	}
	if count > 0 {
		return ErrDuplicateUsername
	}
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("email_hash = ?", digest).Count(&count).Error; errCount != nil {
		return fmt.Errorf("user store: check email: %w", errCount)
	}
	if count > 0 {
		return ErrDuplicateEmail
	}

	row, errSeal := s.seal(*user)
	if errSeal != nil {
		return errSeal
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("user store: create: %w", errCreate)
	}
	user.ID = row.ID
	user.EmailHash = row.EmailHash
	user.CreatedAt = row.CreatedAt
	user.UpdatedAt = row.UpdatedAt
	return nil
}

// Save writes every column of an existing user.
func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("user store: save requires an existing user")
	}
	row, errSeal := s.seal(*user)
	if errSeal != nil {
		return errSeal
	}
	if errSave := s.db.WithContext(ctx).Omit("Analyses").Save(&row).Error; errSave != nil {
		return fmt.Errorf("user store: save: %w", errSave)
	}
	user.UpdatedAt = row.UpdatedAt
	return nil
}

// GetByID loads a user by primary key.
func (s *UserStore) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByUsername loads a user by exact username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

// GetByEmail loads a user through the email digest column.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	digest := s.codec.EmailDigest(email)
	if digest == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "email_hash = ?", digest)
}

// GetByVerificationToken loads the user holding a pending verification token.
func (s *UserStore) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "verification_token = ?", token)
}

// TouchLogin records a successful login time.
func (s *UserStore) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at)
	if res.Error != nil {
		return fmt.Errorf("user store: touch login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AvailableUsername returns base when unused, otherwise base followed by the
// number of usernames sharing the prefix plus one, incremented until free.
func (s *UserStore) AvailableUsername(ctx context.Context, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "user"
	}
	var count int64
	pattern := escapeLike(base) + "%"
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("username LIKE ? ESCAPE '\\'", pattern).Count(&count).Error; errCount != nil {
		return "", fmt.Errorf("user store: count usernames: %w", errCount)
	}
	if count == 0 {
		return base, nil
	}
	for n := count + 1; ; n++ {
		candidate := base + strconv.FormatInt(n, 10)
		var taken int64
		if errTaken := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", candidate).Count(&taken).Error; errTaken != nil {
			return "", fmt.Errorf("user store: check username: %w", errTaken)
		}
		if taken == 0 {
			return candidate, nil
		}
	}
}

// HasAdmin reports whether at least one admin account exists.
func (s *UserStore) HasAdmin(ctx context.Context) (bool, error) {
	if !s.db.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("user store: count admins: %w", errCount)
	}
	return count > 0, nil
}

// Reencrypt seals any user fields still stored in plaintext and fills missing
// email digests. It returns the number of rows rewritten.
func (s *UserStore) Reencrypt(ctx context.Context) (int, error) {
	var rows []models.User
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return 0, fmt.Errorf("user store: list: %w", errFind)
	}
	updated := 0
	for i := range rows {
		row := &rows[i]
		changes := map[string]any{}
		plainEmail := decryptOrRaw(s.codec, "email", row.Email)
		if !isSealed(row.Email) && row.Email != "" {
			sealed, errSeal := s.codec.Encrypt(row.Email)
			if errSeal != nil {
				return updated, fmt.Errorf("user store: encrypt email for user %d: %w", row.ID, errSeal)
			}
			changes["email"] = sealed
		}
		if row.EmailHash == "" && plainEmail != "" {
			changes["email_hash"] = s.codec.EmailDigest(plainEmail)
		}
		if !isSealed(row.FullName) && row.FullName != "" {
			sealed, errSeal := s.codec.Encrypt(row.FullName)
			if errSeal != nil {
				return updated, fmt.Errorf("user store: encrypt full name for user %d: %w", row.ID, errSeal)
			}
			changes["full_name"] = sealed
		}
		if len(changes) == 0 {
			continue
		}
		if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", row.ID).Updates(changes).Error; errUpdate != nil {
			return updated, fmt.Errorf("user store: update user %d: %w", row.ID, errUpdate)
		}
		updated++
	}
	return updated, nil
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var row models.User
	errFind := s.db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("user store: find: %w", errFind)
	}
	row.Email = decryptOrRaw(s.codec, "email", row.Email)
	row.FullName = decryptOrRaw(s.codec, "full_name", row.FullName)
	return &row, nil
}

// seal returns a copy of user with personal fields encrypted.
func (s *UserStore) seal(user models.User) (models.User, error) {
	user.EmailHash = s.codec.EmailDigest(user.Email)
	email, errEmail := s.codec.Encrypt(user.Email)
	if errEmail != nil {
		return models.User{}, fmt.Errorf("user store: encrypt email: %w", errEmail)
	}
	name, errName := s.codec.Encrypt(user.FullName)
	if errName != nil {
		return models.User{}, fmt.Errorf("user store: encrypt full name: %w", errName)
	}
	user.Email = email
	user.FullName = name
	user.Analyses = nil
	return user, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
