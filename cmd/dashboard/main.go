package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain/repository"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/backend"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/localstore"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/postgres"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/redisstore"
	httpRouter "github.com/jhoicas/pos-dashboard/internal/interfaces/http"
	"github.com/jhoicas/pos-dashboard/pkg/config"
	"github.com/jhoicas/pos-dashboard/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Str("terminal", cfg.Store.TerminalID).
		Msg("iniciando dashboard")

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger.Component(log, "store"))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("credential store")
	}
	defer closeStore()

	client := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout,
		RetryMax: cfg.Backend.RetryMax,
		Logger:   logger.Component(log, "backend"),
	})
	engine := session.NewEngine(store, client, session.Options{
		Timeout:   cfg.Backend.Timeout,
		LoginPath: cfg.Session.LoginPath,
		Logger:    logger.Component(log, "session"),
	})

	// La hidratación corre en segundo plano; hasta que termine el guard responde "cargando".
	go func() {
		res, err := engine.Hydrate(ctx, "")
		if err != nil {
			log.Warn().Err(err).Msg("hidratación sin sesión")
			return
		}
		log.Info().Str("state", res.State.String()).Msg("hidratación terminada")
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.Backend.Timeout*2 + time.Second*5,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(cfg.App.DocsPath); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: cfg.App.DocsPath,
			Path:     "docs",
			Title:    "POS Dashboard",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "session_state": engine.Snapshot().State.String()})
	})

	if err := httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:        engine,
		Backend:       client,
		LoginPath:     cfg.Session.LoginPath,
		HomePath:      cfg.Session.HomePath,
		RefreshLeeway: cfg.Session.RefreshLeeway,
		Logger:        logger.Component(log, "http"),
	}); err != nil {
		log.Fatal().Err(err).Msg("configuración de rutas")
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("dashboard detenido")
}

// openStore elige el Credential Store según STORE_DRIVER. La función devuelta
// libera las conexiones.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.CredentialStore, func(), error) {
	switch cfg.Store.Driver {
	case "redis":
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Close() }
		return redisstore.NewCredentialStore(client, cfg.Store.TerminalID, log), closeFn, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewCredentialRepository(pool, cfg.Store.TerminalID, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	case "file", "":
		s, err := localstore.NewCredentialStore(cfg.Store.Path, cfg.Store.Secret, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
	return nil, nil, fmt.Errorf("driver desconocido: %q", cfg.Store.Driver)
}
