package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"dbadmin/internal/auth"
	"dbadmin/internal/config"
	"dbadmin/internal/engine"
	"dbadmin/internal/metadata"
	"dbadmin/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("db", fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)))

	db, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	reg := metadata.NewRegistry(logger, cfg.Admin.ShowAllTables)
	if err := metadata.LoadFile(cfg.Admin.SchemaPath, reg); err != nil {
		logger.Fatal("failed to load schema", zap.Error(err))
	}
	logger.Info("schema loaded", zap.Int("tables", len(reg.Tables())))

	mapper := engine.NewFieldMapper(reg, logger)
	translator := engine.NewPredicateTranslator(reg, logger)
	executor := engine.NewQueryExecutor(db, reg, translator, logger)
	projector := engine.NewRecordProjector(reg, cfg.Admin.BasePath, logger)
	mutator := engine.NewRecordMutator(db, reg, logger)
	handler := engine.NewHandler(reg, mapper, executor, projector, mutator,
		cfg.Admin.BasePath, cfg.Admin.PageSize, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(logger),
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	var middleware []fiber.Handler
	if cfg.Admin.JWTSecret != "" {
		middleware = append(middleware, auth.Middleware(cfg.Admin.JWTSecret))
	}
	engine.RegisterRoutes(app, handler, middleware...)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *engine.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
		}

		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(engine.ErrorResponse{
			Error: &engine.AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
