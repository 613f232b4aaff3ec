package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/notevault/backend/internal/config"
	"github.com/notevault/backend/internal/database"
	"github.com/notevault/backend/internal/middleware"
	"github.com/notevault/backend/internal/models"
	"github.com/notevault/backend/internal/services"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	store  *fakeObjectStore
	mailer *fakeMailer
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := newFakeObjectStore()
	mailer := newFakeMailer()

	cfg := config.Load()
	oauthService := services.NewOAuthProviderService(cfg)

	authHandler := NewAuthHandler(db)
	usersHandler := NewUsersHandler(db, store, mailer, "http://localhost:3001")
	notesHandler := NewNotesHandler(db, store)
	ssoHandler := NewSSOHandler(db, oauthService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/verify/:token", authHandler.VerifyEmail)
	authRoutes.Get("/sso/:provider", ssoHandler.GetLoginRedirect)
	authRoutes.Get("/sso/:provider/callback", ssoHandler.HandleOAuthCallback)

	userRoutes := api.Group("/users")
	userRoutes.Post("/register", usersHandler.Register)
	userRoutes.Post("/resend/email", usersHandler.ResendVerifyEmail)
	userRoutes.Get("/", authMiddleware.RequireAuth, usersHandler.Me)
	userRoutes.Patch("/:id", authMiddleware.RequireAuth, usersHandler.Update)
	userRoutes.Delete("/:id", authMiddleware.RequireAuth, usersHandler.Delete)

	noteRoutes := api.Group("/notes", authMiddleware.RequireAuth)
	noteRoutes.Get("/", notesHandler.List)
	noteRoutes.Post("/", notesHandler.Create)
	noteRoutes.Get("/:noteId", notesHandler.Get)
	noteRoutes.Patch("/:noteId", notesHandler.Update)
	noteRoutes.Delete("/:noteId", notesHandler.Delete)
	noteRoutes.Get("/:noteId/files/:fileId", notesHandler.DownloadFile)

	return &testEnv{app: app, db: db, store: store, mailer: mailer}
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *fakeObjectStore) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %q not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *fakeObjectStore) Has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

func (s *fakeObjectStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu       sync.Mutex
	sent     []sentEmail
	delivery chan sentEmail
	failNext bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{delivery: make(chan sentEmail, 16)}
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	if m.failNext {
		m.failNext = false
		m.mu.Unlock()
		return fmt.Errorf("smtp unavailable")
	}
	email := sentEmail{To: to, Subject: subject, Body: body}
	m.sent = append(m.sent, email)
	m.mu.Unlock()

	m.delivery <- email
	return nil
}

func (m *fakeMailer) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// WaitForEmail blocks until a send lands, covering the fire-and-forget paths
// where delivery happens after the response is written.
func (m *fakeMailer) WaitForEmail(t *testing.T) sentEmail {
	t.Helper()
	select {
	case email := <-m.delivery:
		return email
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for email delivery")
		return sentEmail{}
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username, email, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{models.RoleUser},
		IsVerified:   true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestNote(t *testing.T, db *gorm.DB, user *models.User, title string, updatedAt time.Time) *models.Note {
	t.Helper()

	note := &models.Note{
		UserID:   user.ID,
		Title:    title,
		Content:  "content for " + title,
		Deadline: time.Now().Add(24 * time.Hour),
	}
	if err := db.Create(note).Error; err != nil {
		t.Fatalf("failed creating test note: %v", err)
	}
	if err := db.Model(note).UpdateColumn("updated_at", updatedAt).Error; err != nil {
		t.Fatalf("failed backdating test note: %v", err)
	}
	note.UpdatedAt = updatedAt
	return note
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

type multipartField struct {
	Name  string
	Value string
}

type multipartFile struct {
	Field    string
	Filename string
	Content  []byte
}

func performMultipartRequest(t *testing.T, app *fiber.App, method, path string, fields []multipartField, files []multipartFile, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			t.Fatalf("failed writing multipart field %q: %v", field.Name, err)
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			t.Fatalf("failed creating multipart file %q: %v", file.Filename, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			t.Fatalf("failed writing multipart file %q: %v", file.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}

	return performRequest(t, app, method, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataField(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
