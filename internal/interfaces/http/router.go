package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain/authz"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine        *session.Engine
	Backend       forwarder
	LoginPath     string
	HomePath      string
	RefreshLeeway time.Duration
	Routes        []ProtectedRoute // nil = DefaultRoutes()
	Logger        zerolog.Logger
}

// Router registra las rutas del dashboard. Falla si algún requisito no es
// válido contra el catálogo.
func Router(app *fiber.App, deps RouterDeps) error {
	routes := deps.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	if err := ValidateRoutes(routes); err != nil {
		return fmt.Errorf("rutas protegidas: %w", err)
	}

	guard := func(req authz.Requirement, denied DenialHandler, api bool) fiber.Handler {
		return RouteGuard(deps.Engine, req, GuardOptions{
			LoginPath: deps.LoginPath,
			API:       api,
			Denied:    denied,
			Logger:    deps.Logger,
		})
	}

	authHandler := NewAuthHandler(deps.Engine, deps.LoginPath, deps.HomePath, deps.Logger)
	app.Get(deps.LoginPath, authHandler.LoginPage)

	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/logout", authHandler.Logout)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/profile", guard(authz.Authenticated(), nil, true), authHandler.Profile)

	// Consultas de sesión
	sessionHandler := NewSessionHandler(deps.Engine)
	api.Get("/session", sessionHandler.Get)
	api.Get("/session/permissions/:key", sessionHandler.HasPermission)
	api.Get("/session/roles/:role", sessionHandler.HasRole)
	api.Get("/catalog", sessionHandler.Catalog)

	// Proxy al backend (solo autenticado)
	if deps.Backend != nil {
		proxy := NewProxyHandler(deps.Engine, deps.Backend, deps.RefreshLeeway, deps.Logger)
		api.All("/backend/*", guard(authz.Authenticated(), nil, true), proxy.Forward)
	}

	// Vistas protegidas
	for _, r := range routes {
		app.Get(r.Path, guard(r.Requirement, r.Denied, false), ViewHandler(r))
	}
	return nil
}
