package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/notevault/backend/internal/config"
	"github.com/notevault/backend/internal/database"
	"github.com/notevault/backend/internal/handlers"
	"github.com/notevault/backend/internal/middleware"
	"github.com/notevault/backend/internal/services"
	"github.com/notevault/backend/internal/storage"
	"github.com/notevault/backend/pkg/logger"
	"github.com/notevault/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	mailer, err := services.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		log.Fatalf("smtp initialization failed: %v", err)
	}

	oauthService := services.NewOAuthProviderService(cfg)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db, storageClient, mailer, cfg.Server.FrontendURL)
	notesHandler := handlers.NewNotesHandler(db, storageClient)
	ssoHandler := handlers.NewSSOHandler(db, oauthService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

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

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server_shutdown", nil)

	if err := app.Shutdown(); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
	if err := database.Close(db); err != nil {
		log.Printf("database close failed: %v", err)
	}
}
