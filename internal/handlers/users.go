package handlers

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/notevault/backend/internal/middleware"
	"github.com/notevault/backend/internal/models"
	"github.com/notevault/backend/internal/services"
	"github.com/notevault/backend/internal/storage"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB          *gorm.DB
	Storage     storage.ObjectStore
	Mailer      services.Mailer
	FrontendURL string
}

func NewUsersHandler(db *gorm.DB, storageClient storage.ObjectStore, mailer services.Mailer, frontendURL string) *UsersHandler {
	return &UsersHandler{DB: db, Storage: storageClient, Mailer: mailer, FrontendURL: frontendURL}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "All fields are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}

	var existing models.User
	if err := h.DB.First(&existing, "LOWER(email) = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "Account already exists. Please log in")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	verifyToken, hashedToken, err := utils.GenerateVerifyToken()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating verification token")
	}

	user := models.User{
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     passwordHash,
		Roles:            []string{models.RoleUser},
		IsVerified:       false,
		VerifyEmailToken: &hashedToken,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Check details and try again")
	}

	// Fire and forget. A failed send is recoverable through the resend
	// endpoint while the resend cookie is valid.
	h.sendVerificationEmail(user.Username, user.Email, verifyToken, false)

	resendToken, err := utils.GenerateResendToken(user.ID, user.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating resend token")
	}

	// Readable by the client so the pending address can be displayed, hence
	// not HTTPOnly.
	c.Cookie(&fiber.Cookie{
		Name:     "resend",
		Value:    resendToken,
		MaxAge:   int(utils.ResendTokenTTL.Seconds()),
		Secure:   true,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteNoneMode,
	})

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return utils.Message(c, fiber.StatusCreated, "Registered successfully")
}

func (h *UsersHandler) ResendVerifyEmail(c *fiber.Ctx) error {
	cookie := c.Cookies("resend")
	if cookie == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Email could not be sent")
	}

	claims, err := utils.ValidateResendToken(cookie)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Email could not be sent")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Email could not be sent")
	}

	verifyToken, hashedToken, err := utils.GenerateVerifyToken()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating verification token")
	}

	// Overwriting the stored hash invalidates any previously emailed token.
	if err := h.DB.Model(&user).Update("verify_email_token", hashedToken).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating verification token")
	}

	h.sendVerificationEmail(user.Username, user.Email, verifyToken, false)

	return utils.Message(c, fiber.StatusOK, "Email sent")
}

func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, profilePayload(user))
}

func (h *UsersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	// The avatar is stored before any check runs, mirroring an upload
	// pipeline that precedes the handler. Every rejection below must remove
	// it again so nothing is orphaned.
	avatarPath, avatarErr := h.uploadAvatar(c, currentUser.ID)
	if avatarErr != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading avatar")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusBadRequest, "User not found")
	}

	if userID != currentUser.ID && !currentUser.HasRole(models.RoleAdmin) {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusForbidden, "cannot update another account")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusBadRequest, "User not found")
	}

	password := c.FormValue("password")
	if password == "" {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusBadRequest, "Password is required")
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusBadRequest, "Wrong password")
	}

	if newPassword := c.FormValue("newPassword"); newPassword != "" {
		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			h.removeAvatar(c, avatarPath)
			return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
		}
		user.PasswordHash = hash
	}
	if username := strings.TrimSpace(c.FormValue("username")); username != "" {
		user.Username = username
	}
	if phoneNumber := strings.TrimSpace(c.FormValue("phoneNumber")); phoneNumber != "" {
		user.PhoneNumber = &phoneNumber
	}
	// The old avatar stays in storage until the update persists. Any
	// rejection below must leave it both stored and referenced.
	var oldAvatar *string
	if avatarPath != nil {
		oldAvatar = user.AvatarPath
		user.AvatarPath = avatarPath
		profileURL := "/" + *avatarPath
		user.ProfileURL = &profileURL
	}

	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	if email != "" && email != strings.ToLower(user.Email) {
		var duplicate models.User
		err := h.DB.First(&duplicate, "LOWER(email) = ? AND id <> ?", email, user.ID).Error
		if err == nil {
			h.removeAvatar(c, avatarPath)
			return utils.Error(c, fiber.StatusConflict, "Duplicate email")
		} else if err != gorm.ErrRecordNotFound {
			h.removeAvatar(c, avatarPath)
			return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
		}

		verifyToken, hashedToken, err := utils.GenerateVerifyToken()
		if err != nil {
			h.removeAvatar(c, avatarPath)
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating verification token")
		}

		// The confirmed address stays in place until the new one is
		// verified; only newEmail and the token hash move now.
		user.NewEmail = &email
		user.VerifyEmailToken = &hashedToken

		// Synchronous here, unlike registration: there is no resend window
		// for an email change, so delivery failure aborts the update.
		if err := h.sendVerificationEmail(user.Username, email, verifyToken, true); err != nil {
			h.removeAvatar(c, avatarPath)
			return utils.Error(c, fiber.StatusBadRequest, "Account could not be updated. Please try again")
		}
	}

	if err := h.DB.Save(&user).Error; err != nil {
		h.removeAvatar(c, avatarPath)
		return utils.Error(c, fiber.StatusBadRequest, "Account could not be updated. Please try again")
	}

	h.removeAvatar(c, oldAvatar)

	logger.InfoWithUser(user.ID.String(), "user_updated", map[string]interface{}{
		"email_change_pending": user.NewEmail != nil,
	})

	return utils.Success(c, fiber.StatusOK, profilePayload(&user))
}

// Delete removes the account and everything hanging off it: note attachments
// and avatar in object storage, category links, note rows, then the user.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "User not found")
	}

	if userID != currentUser.ID && !currentUser.HasRole(models.RoleAdmin) {
		return utils.Error(c, fiber.StatusForbidden, "cannot delete another account")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "User not found")
	}

	var notes []models.Note
	if err := h.DB.Preload("Files").Find(&notes, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading notes")
	}

	for i := range notes {
		for _, file := range notes[i].Files {
			if err := h.Storage.Delete(c.Context(), file.Path); err != nil {
				logger.Error("attachment_cleanup_failed", err, map[string]interface{}{
					"object_name": file.Path,
				})
			}
		}
		if err := h.DB.Model(&notes[i]).Association("Categories").Clear(); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed clearing categories")
		}
		if err := h.DB.Where("note_id = ?", notes[i].ID).Delete(&models.NoteFile{}).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed deleting files")
		}
	}

	if err := h.DB.Where("user_id = ?", user.ID).Delete(&models.Note{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting notes")
	}

	h.removeAvatar(c, user.AvatarPath)

	if err := h.DB.Delete(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	// Expire the session cookie so the client is logged out immediately.
	c.Cookie(&fiber.Cookie{
		Name:     "jwt",
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})

	logger.InfoWithUser(user.ID.String(), "user_deleted", nil)

	return utils.Message(c, fiber.StatusOK, "Account deactivated")
}

func (h *UsersHandler) uploadAvatar(c *fiber.Ctx, ownerID uuid.UUID) (*string, error) {
	fileHeader, err := c.FormFile("avatar")
	if err != nil || fileHeader == nil {
		return nil, nil
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%s/avatar/%s", ownerID.String(), uuid.New().String())
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return nil, err
	}

	return &objectName, nil
}

func (h *UsersHandler) removeAvatar(c *fiber.Ctx, path *string) {
	if path == nil {
		return
	}
	if err := h.Storage.Delete(c.Context(), *path); err != nil {
		logger.Error("avatar_cleanup_failed", err, map[string]interface{}{
			"object_name": *path,
		})
	}
}

// sendVerificationEmail delivers the plaintext token. When wait is false the
// send happens in the background and failures are only logged.
func (h *UsersHandler) sendVerificationEmail(username, to, token string, wait bool) error {
	subject := "Please verify your email"
	link := fmt.Sprintf("%s/verify/%s", h.FrontendURL, token)
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Welcome to NoteVault.</p>
<p>Please click the link below to confirm your email address:</p>
<p><a href=%q target="_blank">Confirm your email</a></p>
<p>Thanks!</p>
<p>The NoteVault team</p>`, username, link)

	if wait {
		return h.Mailer.Send(to, subject, body)
	}

	go func() {
		if err := h.Mailer.Send(to, subject, body); err != nil {
			logger.Error("verification_email_failed", err, map[string]interface{}{
				"to": to,
			})
		}
	}()
	return nil
}

func profilePayload(user *models.User) fiber.Map {
	return fiber.Map{
		"id":          user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"newEmail":    user.NewEmail,
		"phoneNumber": user.PhoneNumber,
		"profileUrl":  user.ProfileURL,
		"isVerified":  user.IsVerified,
	}
}
