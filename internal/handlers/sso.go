package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/notevault/backend/internal/models"
	"github.com/notevault/backend/internal/services"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
	"gorm.io/gorm"
)

type SSOHandler struct {
	DB    *gorm.DB
	OAuth *services.OAuthProviderService
}

func NewSSOHandler(db *gorm.DB, oauth *services.OAuthProviderService) *SSOHandler {
	return &SSOHandler{DB: db, OAuth: oauth}
}

func (h *SSOHandler) GetLoginRedirect(c *fiber.Ctx) error {
	provider := c.Params("provider")

	oauthCfg, err := h.OAuth.GetOAuthConfig(provider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.OAuth.GenerateState()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	c.Cookie(&fiber.Cookie{
		Name:     "oauth_state",
		Value:    state,
		MaxAge:   int((10 * time.Minute).Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": oauthCfg.AuthCodeURL(state)})
}

// HandleOAuthCallback logs a social identity into a local account. An
// existing unverified account is never hijacked or recreated: the caller is
// told to finish email verification first.
func (h *SSOHandler) HandleOAuthCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	code := c.Query("code")
	state := c.Query("state")

	if code == "" || state == "" || state != c.Cookies("oauth_state") {
		return utils.Error(c, fiber.StatusBadRequest, "invalid oauth callback")
	}

	token, err := h.OAuth.ExchangeCode(c.Context(), provider, code)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "oauth exchange failed")
	}

	profile, err := h.OAuth.GetUserInfo(c.Context(), provider, token)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed fetching oauth profile")
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))

	var user models.User
	err = h.DB.First(&user, "LOWER(email) = ?", email).Error
	switch {
	case err == nil && user.IsVerified:
		// fall through to login

	case err == nil:
		return utils.Error(c, fiber.StatusForbidden, "Account exists but is not verified. Please verify your email first")

	case err == gorm.ErrRecordNotFound:
		created, createErr := h.createSSOUser(profile, email)
		if createErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
		}
		user = *created

	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed looking up account")
	}

	sessionToken, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "sso_login", map[string]interface{}{
		"provider": profile.Provider,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": sessionToken, "user": profilePayload(&user)})
}

// createSSOUser provisions a verified account for a first social login. The
// password hash is derived from random bytes so password login stays
// impossible until the user sets one explicitly.
func (h *SSOHandler) createSSOUser(profile *services.SSOProfile, email string) (*models.User, error) {
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, err
	}
	passwordHash, err := utils.HashPassword(hex.EncodeToString(random))
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(profile.Username)
	if username == "" {
		username = email
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        []string{models.RoleUser},
		IsVerified:   true,
		ProfileURL:   profile.AvatarURL,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
