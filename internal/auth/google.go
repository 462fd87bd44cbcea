package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/security"
	"github.com/demystify-app/demystify-api/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Identity is the subset of the provider profile used to sign a user in.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// GoogleProvider runs the authorization-code flow against Google.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider returns nil when cfg has no Google credentials.
func NewGoogleProvider(cfg config.OAuthConfig) *GoogleProvider {
	if !cfg.GoogleEnabled() {
		return nil
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: GoogleUserInfoURL,
	}
}

// WithEndpoints overrides the OAuth and userinfo endpoints. It is meant for tests.
func (g *GoogleProvider) WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *GoogleProvider {
	g.oauth.Endpoint = endpoint
	g.userInfoURL = userInfoURL
	return g
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and loads the user's profile.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, errExchange := g.oauth.Exchange(ctx, code)
	if errExchange != nil {
		return Identity{}, fmt.Errorf("google: exchange code: %w", errExchange)
	}
	resp, errGet := g.oauth.Client(ctx, token).Get(g.userInfoURL)
	if errGet != nil {
		return Identity{}, fmt.Errorf("google: userinfo: %w", errGet)
	}
	defer func() { _ = resp.Body.Close() }()
	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return Identity{}, fmt.Errorf("google: read userinfo: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("google: userinfo status %d", resp.StatusCode)
	}
	profile := gjson.ParseBytes(body)
	return Identity{
		Subject: profile.Get("sub").String(),
		Email:   profile.Get("email").String(),
		Name:    profile.Get("name").String(),
	}, nil
}

// LoginWithIdentity signs in the account matching id.Email, creating it on
// first use.
func (s *Service) LoginWithIdentity(ctx context.Context, provider string, id Identity) (TokenResponse, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return TokenResponse{}, apierror.Validation("Email not provided by the identity provider")
	}

	user, errFind := s.users.GetByEmail(ctx, email)
	switch {
	case errFind == nil:
		if !user.Active {
			return TokenResponse{}, apierror.Forbidden("Account disabled")
		}
	case errors.Is(errFind, store.ErrNotFound):
		created, errCreate := s.createFromIdentity(ctx, provider, id)
		if errCreate != nil {
			return TokenResponse{}, errCreate
		}
		user = created
	default:
		return TokenResponse{}, apierror.Wrap(apierror.KindInternal, "Could not load user", errFind)
	}

	if errTouch := s.users.TouchLogin(ctx, user.ID, s.now().UTC()); errTouch != nil {
		log.WithError(errTouch).WithField("user_id", user.ID).Warn("failed to record login time")
	}
	log.WithFields(log.Fields{"user_id": user.ID, "provider": provider, "action": "oauth_login"}).Info("user action")
	return s.issue(user)
}

func (s *Service) createFromIdentity(ctx context.Context, provider string, id Identity) (*models.User, error) {
	base := strings.TrimSpace(strings.SplitN(id.Email, "@", 2)[0])
	username, errName := s.users.AvailableUsername(ctx, base)
	if errName != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not create user", errName)
	}
	secret, errRandom := security.GenerateRandomString(32)
	if errRandom != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not create user", errRandom)
	}
	hash, errHash := security.HashPassword(secret)
	if errHash != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "Could not create user", errHash)
	}
	user := &models.User{
		Username:      username,
		Email:         strings.TrimSpace(id.Email),
		Password:      hash,
		FullName:      id.Name,
		Active:        true,
		OAuthProvider: provider,
		OAuthID:       id.Subject,
		EmailVerified: true,
	}
	if errCreate := s.users.Create(ctx, user); errCreate != nil {
		return nil, mapStoreError(errCreate, "Could not create user")
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username, "provider": provider, "action": "register"}).Info("user action")
	return user, nil
}
