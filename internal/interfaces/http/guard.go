package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain/authz"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
)

// LocalIdentity clave en c.Locals de la identidad que pasó el guard.
const LocalIdentity = "identity"

// sessionReader es lo único que el guard necesita del motor; lo implementa
// *session.Engine.
type sessionReader interface {
	Snapshot() session.Snapshot
}

// DenialHandler vista de acceso denegado propia de una ruta.
type DenialHandler func(c *fiber.Ctx, d authz.Decision) error

// GuardOptions configuración del guard.
type GuardOptions struct {
	LoginPath string
	// API responde 401 JSON en vez de redirigir al login.
	API    bool
	Denied DenialHandler
	Logger zerolog.Logger
}

type branch int

const (
	branchLoading branch = iota
	branchUnauthenticated
	branchDenied
	branchAllowed
)

// RouteGuard protege una ruta con req. Se evalúa en cada petición, en este orden:
//   - cargando       → 503 SESSION_LOADING con Retry-After; nada más se evalúa.
//   - sin identidad  → 302 al login con ?next=<uri original> (401 si API).
//   - Deny           → 403 con requerido vs actual, o la vista propia de la ruta.
//   - Allow          → c.Next() con la identidad en c.Locals.
func RouteGuard(sess sessionReader, req authz.Requirement, opts GuardOptions) fiber.Handler {
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	return func(c *fiber.Ctx) error {
		b, id, decision := decide(sess, req, opts.Logger)

		switch b {
		case branchLoading:
			return loading(c)

		case branchUnauthenticated:
			if opts.API {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHENTICATED", Message: "sesión requerida"})
			}
			return c.Redirect(loginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)

		case branchDenied:
			opts.Logger.Info().
				Str("path", c.Path()).
				Str("reason", string(decision.Reason)).
				Str("role", string(decision.ActualRole)).
				Strs("required", decision.Required).
				Msg("acceso denegado")
			if opts.Denied != nil {
				return opts.Denied(c, decision)
			}
			return accessDenied(c, decision)
		}

		c.Locals(LocalIdentity, id)
		return c.Next()
	}
}

// decide nunca entra en pánico: cualquier fallo al leer la sesión o evaluar
// termina en la rama sin identidad.
func decide(sess sessionReader, req authz.Requirement, log zerolog.Logger) (b branch, id *entity.Identity, d authz.Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("route guard: pánico, se trata como sin sesión")
			b, id, d = branchUnauthenticated, nil, authz.Decision{Reason: authz.ReasonUnauthenticated}
		}
	}()

	snap := sess.Snapshot()
	if snap.IsLoading {
		return branchLoading, nil, authz.Decision{}
	}
	if snap.Identity == nil {
		return branchUnauthenticated, nil, authz.Decision{Reason: authz.ReasonUnauthenticated}
	}
	d = authz.Evaluate(snap.Identity, req)
	if !d.Allowed {
		return branchDenied, snap.Identity, d
	}
	return branchAllowed, snap.Identity, d
}

func accessDenied(c *fiber.Ctx, d authz.Decision) error {
	return c.Status(fiber.StatusForbidden).JSON(dto.AccessDeniedResponse{
		Code:       "FORBIDDEN",
		Message:    "no tiene acceso a esta sección",
		Path:       c.Path(),
		Reason:     string(d.Reason),
		Mode:       d.Mode,
		Required:   d.Required,
		ActualRole: string(d.ActualRole),
		Actual:     d.Actual,
	})
}

// GetIdentity devuelve la identidad que dejó RouteGuard (nil fuera de una ruta protegida).
func GetIdentity(c *fiber.Ctx) *entity.Identity {
	id, _ := c.Locals(LocalIdentity).(*entity.Identity)
	return id
}
