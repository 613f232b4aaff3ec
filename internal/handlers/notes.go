package handlers

import (
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/notevault/backend/internal/middleware"
	"github.com/notevault/backend/internal/models"
	"github.com/notevault/backend/internal/storage"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
	"gorm.io/gorm"
)

type NotesHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
}

func NewNotesHandler(db *gorm.DB, storageClient storage.ObjectStore) *NotesHandler {
	return &NotesHandler{DB: db, Storage: storageClient}
}

// List pages through the caller's notes. The count and the page query run
// over the identical predicate so pages/total stay consistent.
func (h *NotesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))
	start, end := utils.UpdatedRange(c.Query("fromDate"), c.Query("toDate"))

	query := h.DB.Model(&models.Note{}).
		Where("user_id = ?", currentUser.ID).
		Where("updated_at >= ? AND updated_at <= ?", start, end)
	if search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting notes")
	}
	if total == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "No notes found")
	}

	pages := utils.TotalPages(total, p.Size)
	if p.Page > pages {
		return utils.Error(c, fiber.StatusBadRequest, "Page not found")
	}

	var notes []models.Note
	err := utils.ApplyPagination(query.Preload("Files").Preload("Categories").Order("updated_at DESC"), p).
		Find(&notes).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing notes")
	}

	return utils.Paged(c, pages, total, notes)
}

func (h *NotesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	noteID, err := parseUUID(c.Params("noteId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	var note models.Note
	err = h.DB.Preload("Files").Preload("Categories").
		First(&note, "id = ? AND user_id = ?", noteID, currentUser.ID).Error
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	return utils.Success(c, fiber.StatusOK, note)
}

func (h *NotesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	content := strings.TrimSpace(c.FormValue("content"))
	deadlineRaw := strings.TrimSpace(c.FormValue("deadline"))

	if title == "" || content == "" || deadlineRaw == "" {
		return utils.Error(c, fiber.StatusBadRequest, "All fields are required")
	}

	deadline, err := parseDeadline(deadlineRaw)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid deadline")
	}

	categories, err := h.resolveCategories(c.FormValue("categories"))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving categories")
	}

	files, err := h.uploadAttachments(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading files")
	}

	note := models.Note{
		UserID:     currentUser.ID,
		Title:      title,
		Content:    content,
		Deadline:   deadline,
		Files:      files,
		Categories: categories,
	}

	if err := h.DB.Create(&note).Error; err != nil {
		h.removeStoredFiles(c, files)
		return utils.Error(c, fiber.StatusBadRequest, "Invalid note data received")
	}

	logger.InfoWithUser(currentUser.ID.String(), "note_created", map[string]interface{}{
		"note_id":    note.ID.String(),
		"file_count": len(files),
	})

	return utils.Success(c, fiber.StatusCreated, note)
}

func (h *NotesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	noteID, err := parseUUID(c.Params("noteId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	content := strings.TrimSpace(c.FormValue("content"))
	deadlineRaw := strings.TrimSpace(c.FormValue("deadline"))

	if title == "" || content == "" || deadlineRaw == "" {
		return utils.Error(c, fiber.StatusBadRequest, "All fields are required")
	}

	deadline, err := parseDeadline(deadlineRaw)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid deadline")
	}

	var note models.Note
	err = h.DB.Preload("Files").First(&note, "id = ? AND user_id = ?", noteID, currentUser.ID).Error
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	newFiles, err := h.uploadAttachments(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading files")
	}

	// New uploads replace the previous attachment set wholesale.
	if len(newFiles) > 0 {
		h.removeStoredFiles(c, note.Files)
		if err := h.DB.Where("note_id = ?", note.ID).Delete(&models.NoteFile{}).Error; err != nil {
			h.removeStoredFiles(c, newFiles)
			return utils.Error(c, fiber.StatusInternalServerError, "failed replacing files")
		}
		note.Files = newFiles
	}

	note.Title = title
	note.Content = content
	note.Deadline = deadline

	if raw := strings.TrimSpace(c.FormValue("categories")); raw != "" {
		categories, err := h.resolveCategories(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed resolving categories")
		}
		if err := h.DB.Model(&note).Association("Categories").Replace(categories); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating categories")
		}
	}

	if err := h.DB.Save(&note).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating note")
	}

	var updated models.Note
	if err := h.DB.Preload("Files").Preload("Categories").First(&updated, "id = ?", note.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated note")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete removes the note's stored objects and category links before the row
// itself disappears.
func (h *NotesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	noteID, err := parseUUID(c.Params("noteId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	var note models.Note
	err = h.DB.Preload("Files").First(&note, "id = ? AND user_id = ?", noteID, currentUser.ID).Error
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	h.removeStoredFiles(c, note.Files)

	if err := h.DB.Model(&note).Association("Categories").Clear(); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed clearing categories")
	}
	if err := h.DB.Where("note_id = ?", note.ID).Delete(&models.NoteFile{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting files")
	}
	if err := h.DB.Delete(&note).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting note")
	}

	logger.InfoWithUser(currentUser.ID.String(), "note_deleted", map[string]interface{}{
		"note_id": note.ID.String(),
	})

	return utils.Message(c, fiber.StatusOK, "Note deleted")
}

func (h *NotesHandler) DownloadFile(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	noteID, err := parseUUID(c.Params("noteId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}
	fileID, err := parseUUID(c.Params("fileId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "File not found")
	}

	var note models.Note
	if err := h.DB.First(&note, "id = ? AND user_id = ?", noteID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Note not found")
	}

	var file models.NoteFile
	if err := h.DB.First(&file, "id = ? AND note_id = ?", fileID, note.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "File not found")
	}

	stream, err := h.Storage.Download(c.Context(), file.Path)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	c.Set(fiber.HeaderContentType, file.Mimetype)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Filename))
	return c.SendStream(stream)
}

// uploadAttachments stores every multipart "files" part and returns the
// manifest rows to attach. Partial failure removes what was already stored.
func (h *NotesHandler) uploadAttachments(c *fiber.Ctx, ownerID uuid.UUID) ([]models.NoteFile, error) {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil, nil
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, nil
	}

	files := make([]models.NoteFile, 0, len(headers))
	for _, fileHeader := range headers {
		entry, err := h.storeAttachment(c, ownerID, fileHeader)
		if err != nil {
			h.removeStoredFiles(c, files)
			return nil, err
		}
		files = append(files, *entry)
	}

	return files, nil
}

func (h *NotesHandler) storeAttachment(c *fiber.Ctx, ownerID uuid.UUID, fileHeader *multipart.FileHeader) (*models.NoteFile, error) {
	stream, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" {
		return nil, fmt.Errorf("invalid filename")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%s/%s/%s", ownerID.String(), uuid.New().String(), filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return nil, err
	}

	return &models.NoteFile{
		Path:     objectName,
		Filename: filename,
		Mimetype: contentType,
		Size:     fileHeader.Size,
	}, nil
}

func (h *NotesHandler) removeStoredFiles(c *fiber.Ctx, files []models.NoteFile) {
	for _, file := range files {
		if err := h.Storage.Delete(c.Context(), file.Path); err != nil {
			logger.Error("attachment_cleanup_failed", err, map[string]interface{}{
				"object_name": file.Path,
			})
		}
	}
}

func (h *NotesHandler) resolveCategories(raw string) ([]models.Category, error) {
	names := strings.Split(raw, ",")
	categories := make([]models.Category, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var category models.Category
		if err := h.DB.Where("name = ?", name).FirstOrCreate(&category, models.Category{Name: name}).Error; err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func parseDeadline(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}
