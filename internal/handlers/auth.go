package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/notevault/backend/internal/models"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "LOWER(email) = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": profilePayload(&user)})
}

// VerifyEmail confirms the token a verification email carried. The stored
// hash is the only server-side state; matching it flips the account to
// verified and promotes a pending email change.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid or expired token")
	}

	hashed := utils.HashVerifyToken(token)

	var user models.User
	if err := h.DB.First(&user, "verify_email_token = ?", hashed).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid or expired token")
	}

	user.IsVerified = true
	user.VerifyEmailToken = nil
	if user.NewEmail != nil {
		user.Email = *user.NewEmail
		user.NewEmail = nil
	}

	if err := h.DB.Save(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "Email is no longer available")
	}

	logger.InfoWithUser(user.ID.String(), "email_verified", nil)

	return utils.Message(c, fiber.StatusOK, "Email verified")
}
