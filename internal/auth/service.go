// Package auth implements account registration, login, email verification and
// Google sign-in on top of the user store and the JWT issuer.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/security"
	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/demystify-app/demystify-api/internal/store"
	log "github.com/sirupsen/logrus"
)

// TokenType is the token_type reported with every issued access token.
const TokenType = "bearer"

// VerificationConfig controls email verification.
type VerificationConfig struct {
	// Enabled is true when mail can be sent.
	Enabled bool
	// Required is true when new local accounts must confirm their email.
	Required bool
	// FrontendURL is the base of the verification link.
	FrontendURL string
}

// Active reports whether new local accounts receive a verification token.
func (v VerificationConfig) Active() bool { return v.Enabled && v.Required }

// UserView is the public representation of a user.
type UserView struct {
	ID            uint64    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	IsActive      bool      `json:"is_active"`
	IsAdmin       bool      `json:"is_admin"`
	EmailVerified bool      `json:"email_verified"`
	OAuthProvider string    `json:"oauth_provider,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ViewOf builds the public view of user.
func ViewOf(user *models.User) UserView {
	return UserView{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		IsActive:      user.Active,
		IsAdmin:       user.IsAdmin,
		EmailVerified: user.EmailVerified,
		OAuthProvider: user.OAuthProvider,
		CreatedAt:     user.CreatedAt,
	}
}

// TokenResponse is returned by register, login and OAuth callback.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	User        UserView `json:"user"`
}

// Service implements the account flows.
type Service struct {
	users  *store.UserStore
	tokens *security.TokenIssuer
	mailer Mailer
	verify VerificationConfig
	now    func() time.Time
}

// NewService constructs a Service. mailer may be nil when mail is disabled.
func NewService(users *store.UserStore, tokens *security.TokenIssuer, mailer Mailer, verify VerificationConfig) *Service {
	if mailer == nil {
		verify.Enabled = false
	}
	return &Service{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		verify: verify,
		now:    time.Now,
	}
}

// Verification returns the effective verification settings.
func (s *Service) Verification() VerificationConfig { return s.verify }

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (TokenResponse, error) {
	in = in.normalized()
	if errValidate := validateInput(in); errValidate != nil {
		return TokenResponse{}, errValidate
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return TokenResponse{}, apierror.Wrap(apierror.KindInternal, "Error registering user", errHash)
	}
	user := &models.User{
		Username:      in.Username,
		Email:         in.Email,
		Password:      hash,
		FullName:      in.FullName,
		Active:        true,
		IsAdmin:       false,
		EmailVerified: !s.verify.Active(),
	}
	if s.verify.Active() {
		if errToken := s.assignVerificationToken(user); errToken != nil {
			return TokenResponse{}, apierror.Wrap(apierror.KindInternal, "Error registering user", errToken)
		}
	}
	if errCreate := s.users.Create(ctx, user); errCreate != nil {
		return TokenResponse{}, mapStoreError(errCreate, "Error registering user")
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username, "action": "register"}).Info("user action")

	if user.VerificationToken != "" {
		s.sendVerification(ctx, user)
	}
	return s.Login(ctx, LoginInput{Username: in.Username, Password: in.Password})
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (TokenResponse, error) {
	user, errFind := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if errFind != nil && !errors.Is(errFind, store.ErrNotFound) {
		return TokenResponse{}, apierror.Wrap(apierror.KindInternal, "Error signing in", errFind)
	}
	if user == nil || !security.CheckPassword(user.Password, in.Password) {
		log.WithField("username", in.Username).Warn("login rejected")
		return TokenResponse{}, apierror.Unauthorized("Incorrect username or password")
	}

	now := s.now().UTC()
	if errTouch := s.users.TouchLogin(ctx, user.ID, now); errTouch != nil {
		log.WithError(errTouch).WithField("user_id", user.ID).Warn("failed to record login time")
	}
	user.LastLoginAt = &now
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username, "action": "login"}).Info("user action")
	return s.issue(user)
}

// Authenticate resolves the user behind an access token.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apierror.Unauthorized("Could not validate credentials")
	}
	userID, errParse := s.tokens.Parse(token)
	if errParse != nil {
		return nil, apierror.Unauthorized("Invalid or expired token")
	}
	user, errFind := s.users.GetByID(ctx, userID)
	if errors.Is(errFind, store.ErrNotFound) {
		return nil, apierror.NotFound("User not found")
	}
	if errFind != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not load user", errFind)
	}
	if !user.Active {
		return nil, apierror.Validation("Inactive user")
	}
	return user, nil
}

// VerifyEmail consumes a verification token. Already verified accounts are
// returned unchanged.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	invalid := apierror.Validation("Invalid or expired token")
	user, errFind := s.users.GetByVerificationToken(ctx, token)
	if errors.Is(errFind, store.ErrNotFound) {
		return nil, invalid
	}
	if errFind != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not verify email", errFind)
	}
	if user.EmailVerified {
		return user, nil
	}
	if user.VerificationTokenExpires != nil && s.now().After(*user.VerificationTokenExpires) {
		log.WithField("user_id", user.ID).Info("verification token expired")
		return nil, invalid
	}
	user.EmailVerified = true
	user.VerificationToken = ""
	user.VerificationTokenExpires = nil
	if errSave := s.users.Save(ctx, user); errSave != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not verify email", errSave)
	}
	log.WithFields(log.Fields{"user_id": user.ID, "action": "verify_email"}).Info("user action")
	return user, nil
}

// ResendVerification issues a fresh token for an unverified account and mails it.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	failed := apierror.Validation("Could not send the email").
		WithDetail("Check that the account exists and is not verified yet.")
	if !s.verify.Enabled {
		return failed
	}
	user, errFind := s.users.GetByEmail(ctx, email)
	if errFind != nil {
		if !errors.Is(errFind, store.ErrNotFound) {
			log.WithError(errFind).Warn("resend verification lookup failed")
		}
		return failed
	}
	if user.EmailVerified {
		return failed
	}
	if errToken := s.assignVerificationToken(user); errToken != nil {
		return apierror.Wrap(apierror.KindInternal, "Could not send the email", errToken)
	}
	if errSave := s.users.Save(ctx, user); errSave != nil {
		return apierror.Wrap(apierror.KindInternal, "Could not send the email", errSave)
	}
	if !s.sendVerification(ctx, user) {
		return failed
	}
	return nil
}

// CreateAdmin creates an active, verified administrator account.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*models.User, error) {
	in = in.normalized()
	if errValidate := validateInput(in); errValidate != nil {
		return nil, errValidate
	}
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Error creating admin", errHash)
	}
	user := &models.User{
		Username:      in.Username,
		Email:         in.Email,
		Password:      hash,
		FullName:      in.FullName,
		Active:        true,
		IsAdmin:       true,
		EmailVerified: true,
	}
	if errCreate := s.users.Create(ctx, user); errCreate != nil {
		return nil, mapStoreError(errCreate, "Error creating admin")
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username, "action": "create_admin"}).Info("user action")
	return user, nil
}

func (s *Service) issue(user *models.User) (TokenResponse, error) {
	token, errIssue := s.tokens.Issue(user.ID)
	if errIssue != nil {
		return TokenResponse{}, apierror.Wrap(apierror.KindInternal, "Could not issue token", errIssue)
	}
	return TokenResponse{AccessToken: token, TokenType: TokenType, User: ViewOf(user)}, nil
}

func (s *Service) assignVerificationToken(user *models.User) error {
	token, errToken := security.GenerateRandomString(32)
	if errToken != nil {
		return errToken
	}
	expires := s.now().Add(settings.VerificationTokenTTL)
	user.VerificationToken = token
	user.VerificationTokenExpires = &expires
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) bool {
	if s.mailer == nil {
		return false
	}
	link := strings.TrimRight(s.verify.FrontendURL, "/") + "/verify-email?token=" + user.VerificationToken
	if errSend := s.mailer.SendVerification(ctx, user.Email, user.Username, link); errSend != nil {
		log.WithError(errSend).WithField("user_id", user.ID).Error("failed to send verification email")
		return false
	}
	log.WithField("user_id", user.ID).Info("verification email sent")
	return true
}

func mapStoreError(err error, message string) error {
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		return apierror.Conflict("Username already registered")
	case errors.Is(err, store.ErrDuplicateEmail):
		return apierror.Conflict("Email already registered")
	default:
		return apierror.Wrap(apierror.KindInternal, message, err)
	}
}
