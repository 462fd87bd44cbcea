package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/db"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/security"
	"github.com/demystify-app/demystify-api/internal/store"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

type captureMailer struct {
	mu    sync.Mutex
	sent  []string
	links []string
	err   error
}

func (m *captureMailer) SendVerification(_ context.Context, to, _ string, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	m.links = append(m.links, link)
	return nil
}

func newTestService(t *testing.T, mailer Mailer, verify VerificationConfig) (*Service, *store.UserStore) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "auth-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	codec, err := security.DeriveFieldCipher("auth-test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	tokens, err := security.NewTokenIssuer("auth-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	users := store.NewUserStore(conn, codec)
	return NewService(users, tokens, mailer, verify), users
}

func registerInput(username, email string) RegisterInput {
	return RegisterInput{Username: username, Email: email, Password: "secret123", FullName: "Ana Test"}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, users := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()

	resp, err := svc.Register(ctx, registerInput("ana", "ana@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "bearer" {
		t.Fatalf("unexpected token response: %+v", resp)
	}
	if resp.User.Username != "ana" || resp.User.Email != "ana@example.com" || resp.User.IsAdmin {
		t.Fatalf("unexpected user view: %+v", resp.User)
	}
	if !resp.User.EmailVerified {
		t.Fatalf("accounts are verified when verification is off")
	}

	stored, err := users.GetByUsername(ctx, "ana")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}

	user, err := svc.Authenticate(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != resp.User.ID {
		t.Fatalf("authenticated id = %d, want %d", user.ID, resp.User.ID)
	}

	if _, err := svc.Login(ctx, LoginInput{Username: "ana", Password: "wrong-pass"}); !apierror.Is(err, apierror.KindUnauthorized) {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Username: "nobody", Password: "secret123"}); !apierror.Is(err, apierror.KindUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	svc, _ := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()

	cases := []RegisterInput{
		{Username: "ab", Email: "ab@example.com", Password: "secret123"},
		{Username: "valid", Email: "not-an-email", Password: "secret123"},
		{Username: "valid", Email: "valid@example.com", Password: "123"},
		{Username: "valid", Email: "valid@example.com", Password: "secret123", FullName: strings.Repeat("x", 101)},
	}
	for _, in := range cases {
		if _, err := svc.Register(ctx, in); !apierror.Is(err, apierror.KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}

	if _, err := svc.Register(ctx, registerInput("ana", "ana@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, registerInput("ana", "other@example.com"))
	if !apierror.Is(err, apierror.KindConflict) || apierror.KindOf(err).Status() != http.StatusBadRequest {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
	_, err = svc.Register(ctx, registerInput("ana2", "ANA@example.com"))
	if !apierror.Is(err, apierror.KindConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
}

func TestAuthenticateErrors(t *testing.T) {
	svc, users := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "garbage"); !apierror.Is(err, apierror.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	missing, err := svc.tokens.Issue(999)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Authenticate(ctx, missing); !apierror.Is(err, apierror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	resp, err := svc.Register(ctx, registerInput("ana", "ana@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	user, err := users.GetByID(ctx, resp.User.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	user.Active = false
	if errSave := users.Save(ctx, user); errSave != nil {
		t.Fatalf("Save: %v", errSave)
	}
	if _, err := svc.Authenticate(ctx, resp.AccessToken); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected inactive user error, got %v", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	mailer := &captureMailer{}
	svc, users := newTestService(t, mailer, VerificationConfig{Enabled: true, Required: true, FrontendURL: "http://app.test/"})
	ctx := context.Background()

	resp, err := svc.Register(ctx, registerInput("ana", "ana@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.EmailVerified {
		t.Fatalf("new account should be unverified")
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "ana@example.com" {
		t.Fatalf("expected one verification mail, got %v", mailer.sent)
	}
	link, err := url.Parse(mailer.links[0])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if link.Host != "app.test" || link.Path != "/verify-email" {
		t.Fatalf("unexpected link %s", mailer.links[0])
	}
	token := link.Query().Get("token")

	if _, err := svc.VerifyEmail(ctx, "unknown-token"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	verified, err := svc.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !verified.EmailVerified || verified.VerificationToken != "" {
		t.Fatalf("expected verified user with cleared token: %+v", verified)
	}
	stored, err := users.GetByID(ctx, verified.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.EmailVerified {
		t.Fatalf("verification was not persisted")
	}

	if err := svc.ResendVerification(ctx, "ana@example.com"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected resend to fail for verified account, got %v", err)
	}
	if err := svc.ResendVerification(ctx, "ghost@example.com"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected resend to fail for unknown account, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	mailer := &captureMailer{}
	svc, _ := newTestService(t, mailer, VerificationConfig{Enabled: true, Required: true, FrontendURL: "http://app.test"})
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerInput("ana", "ana@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	link, _ := url.Parse(mailer.links[0])
	token := link.Query().Get("token")

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := svc.VerifyEmail(ctx, token); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	svc.now = time.Now
	if err := svc.ResendVerification(ctx, "ana@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if len(mailer.links) != 2 {
		t.Fatalf("expected a second mail, got %d", len(mailer.links))
	}
	fresh, _ := url.Parse(mailer.links[1])
	if fresh.Query().Get("token") == token {
		t.Fatalf("resend should issue a new token")
	}
	if _, err := svc.VerifyEmail(ctx, fresh.Query().Get("token")); err != nil {
		t.Fatalf("VerifyEmail with fresh token: %v", err)
	}
}

func TestResendVerificationMailFailure(t *testing.T) {
	mailer := &captureMailer{}
	svc, _ := newTestService(t, mailer, VerificationConfig{Enabled: true, Required: true, FrontendURL: "http://app.test"})
	ctx := context.Background()
	if _, err := svc.Register(ctx, registerInput("ana", "ana@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	mailer.err = errors.New("relay down")
	if err := svc.ResendVerification(ctx, "ana@example.com"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected send failure to be reported, got %v", err)
	}
}

func TestVerificationNeedsRequiredFlag(t *testing.T) {
	mailer := &captureMailer{}
	svc, _ := newTestService(t, mailer, VerificationConfig{Enabled: true, Required: false})
	resp, err := svc.Register(context.Background(), registerInput("ana", "ana@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !resp.User.EmailVerified || len(mailer.sent) != 0 {
		t.Fatalf("verification should be skipped when not required")
	}
}

func TestCreateAdmin(t *testing.T) {
	svc, users := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, registerInput("root", "root@example.com"))
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if !admin.IsAdmin || !admin.EmailVerified {
		t.Fatalf("unexpected admin: %+v", admin)
	}
	has, err := users.HasAdmin(ctx)
	if err != nil || !has {
		t.Fatalf("HasAdmin = %v, %v", has, err)
	}
	if _, err := svc.CreateAdmin(ctx, registerInput("root", "root2@example.com")); !apierror.Is(err, apierror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func newGoogleServer(t *testing.T, profile map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if errParse := r.ParseForm(); errParse != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"upstream-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GoogleProvider {
	provider := NewGoogleProvider(config.OAuthConfig{
		GoogleClientID:     "client",
		GoogleClientSecret: "secret",
		GoogleRedirectURL:  "http://app.test/auth/callback",
	})
	return provider.WithEndpoints(oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/userinfo")
}

func TestGoogleProvider(t *testing.T) {
	if NewGoogleProvider(config.OAuthConfig{}) != nil {
		t.Fatalf("provider must be nil without credentials")
	}
	srv := newGoogleServer(t, map[string]string{"sub": "g-123", "email": "maria@example.com", "name": "Maria"})
	provider := testProvider(srv)

	authURL, err := url.Parse(provider.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if authURL.Query().Get("state") != "state-1" || authURL.Query().Get("client_id") != "client" {
		t.Fatalf("unexpected auth url %s", authURL)
	}

	id, err := provider.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if id.Subject != "g-123" || id.Email != "maria@example.com" || id.Name != "Maria" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if _, err := provider.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatalf("expected exchange failure")
	}
}

func TestLoginWithIdentity(t *testing.T) {
	svc, users := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, registerInput("maria", "someone@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp, err := svc.LoginWithIdentity(ctx, models.ProviderGoogle, Identity{Subject: "g-1", Email: "maria@example.com", Name: "Maria"})
	if err != nil {
		t.Fatalf("LoginWithIdentity: %v", err)
	}
	if resp.User.Username != "maria2" {
		t.Fatalf("username = %q, want maria2", resp.User.Username)
	}
	if resp.User.OAuthProvider != models.ProviderGoogle || !resp.User.EmailVerified {
		t.Fatalf("unexpected oauth user: %+v", resp.User)
	}

	again, err := svc.LoginWithIdentity(ctx, models.ProviderGoogle, Identity{Subject: "g-1", Email: "maria@example.com"})
	if err != nil {
		t.Fatalf("second LoginWithIdentity: %v", err)
	}
	if again.User.ID != resp.User.ID {
		t.Fatalf("expected the existing account to be reused")
	}

	user, _ := users.GetByID(ctx, resp.User.ID)
	user.Active = false
	if errSave := users.Save(ctx, user); errSave != nil {
		t.Fatalf("Save: %v", errSave)
	}
	if _, err := svc.LoginWithIdentity(ctx, models.ProviderGoogle, Identity{Email: "maria@example.com"}); !apierror.Is(err, apierror.KindForbidden) {
		t.Fatalf("expected forbidden for disabled account, got %v", err)
	}
	if _, err := svc.LoginWithIdentity(ctx, models.ProviderGoogle, Identity{}); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected validation error without email, got %v", err)
	}
}

func TestRequireUserAndAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, nil, VerificationConfig{})
	ctx := context.Background()
	resp, err := svc.Register(ctx, registerInput("ana", "ana@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := gin.New()
	r.GET("/me", RequireUser(svc, false), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID, "ctx_id": c.GetUint64(ContextUserIDKey)})
	})
	r.GET("/admin", RequireUser(svc, false), RequireAdmin(false), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("missing token: code=%d header=%q", w.Code, w.Header().Get("WWW-Authenticate"))
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: code=%d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: code=%d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		if got != want || ok != (want != "") {
			t.Fatalf("bearerToken(%q) = %q, %v", header, got, ok)
		}
	}
}
