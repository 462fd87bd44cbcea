package handlers

import (
	"net/http"
	"strings"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves account endpoints.
type AuthHandler struct {
	svc    *auth.Service
	google *auth.GoogleProvider
	secure bool
	debug  bool
}

// NewAuthHandler constructs an AuthHandler. google may be nil.
func NewAuthHandler(svc *auth.Service, google *auth.GoogleProvider, secureCookies, debug bool) *AuthHandler {
	return &AuthHandler{svc: svc, google: google, secure: secureCookies, debug: debug}
}

// Register creates an account and returns an access token.
func (h *AuthHandler) Register(c *gin.Context) {
	var body auth.RegisterInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierror.Respond(c, apierror.Validation("Invalid JSON body").WithDetail(errBind.Error()), h.debug)
		return
	}
	resp, errRegister := h.svc.Register(c.Request.Context(), body)
	if errRegister != nil {
		apierror.Respond(c, errRegister, h.debug)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Login exchanges credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body auth.LoginInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierror.Respond(c, apierror.Validation("Invalid JSON body").WithDetail(errBind.Error()), h.debug)
		return
	}
	resp, errLogin := h.svc.Login(c.Request.Context(), body)
	if errLogin != nil {
		apierror.Respond(c, errLogin, h.debug)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, auth.ViewOf(auth.CurrentUser(c)))
}

// OAuthStatus lists the configured identity providers.
func (h *AuthHandler) OAuthStatus(c *gin.Context) {
	providers := []string{}
	if h.google != nil {
		providers = append(providers, models.ProviderGoogle)
	}
	c.JSON(http.StatusOK, gin.H{"oauth_enabled": h.google != nil, "providers": providers})
}

// GoogleLogin redirects to the Google consent page.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if h.google == nil {
		apierror.Respond(c, apierror.New(apierror.KindNotImplemented, "OAuth is not configured"), h.debug)
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", h.secure, true)
	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state))
}

// GoogleCallback completes the Google flow and returns an access token.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.google == nil {
		apierror.Respond(c, apierror.New(apierror.KindNotImplemented, "OAuth is not configured"), h.debug)
		return
	}
	expected, errCookie := c.Cookie(oauthStateCookie)
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.secure, true)
	state := c.Query("state")
	if errCookie != nil || expected == "" || state != expected {
		apierror.Respond(c, apierror.Validation("Invalid OAuth state"), h.debug)
		return
	}
	if reason := c.Query("error"); reason != "" {
		apierror.Respond(c, apierror.Validation("Google authentication failed").WithDetail(reason), h.debug)
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		apierror.Respond(c, apierror.Validation("Missing authorization code"), h.debug)
		return
	}

	identity, errExchange := h.google.Exchange(c.Request.Context(), code)
	if errExchange != nil {
		log.WithError(errExchange).Warn("google exchange failed")
		apierror.Respond(c, apierror.Validation("Google authentication failed").WithDetail(errExchange.Error()), h.debug)
		return
	}
	resp, errLogin := h.svc.LoginWithIdentity(c.Request.Context(), models.ProviderGoogle, identity)
	if errLogin != nil {
		apierror.Respond(c, errLogin, h.debug)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyEmail consumes a verification token.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	user, errVerify := h.svc.VerifyEmail(c.Request.Context(), c.Query("token"))
	if errVerify != nil {
		apierror.Respond(c, errVerify, h.debug)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified", "username": user.Username})
}

// ResendVerification mails a fresh verification link.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if !auth.ValidEmail(email) {
		apierror.Respond(c, apierror.Validation("Validation error").WithDetail("email must be a valid email address"), h.debug)
		return
	}
	if errResend := h.svc.ResendVerification(c.Request.Context(), email); errResend != nil {
		apierror.Respond(c, errResend, h.debug)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification email sent"})
}
