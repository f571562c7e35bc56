package http

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain"
)

// AuthHandler login, logout, refresh y recarga de perfil.
type AuthHandler struct {
	engine    *session.Engine
	validate  *validator.Validate
	loginPath string
	homePath  string
	log       zerolog.Logger
}

// NewAuthHandler construye el handler de auth.
func NewAuthHandler(engine *session.Engine, loginPath, homePath string, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{engine: engine, validate: validator.New(), loginPath: loginPath, homePath: homePath, log: log}
}

// LoginPage godoc
// @Summary      Página de login
// @Description  Redirige fuera del login si ya hay sesión.
// @Tags         auth
// @Produce      json
// @Param        next  query  string  false  "destino tras el login"
// @Success      200   {object}  map[string]string
// @Success      302
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /login [get]
func (h *AuthHandler) LoginPage(c *fiber.Ctx) error {
	if h.engine.IsLoading() {
		return loading(c)
	}
	next := safeNext(c.Query("next"), h.homePath)
	if h.engine.ShouldRedirectFromLogin(h.loginPath) {
		return c.Redirect(next, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"view": "login", "next": next})
}

// Login godoc
// @Summary      Iniciar sesión
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.LoginRequest  true  "username, password"
// @Param        next  query  string  false  "destino tras el login"
// @Success      200   {object}  dto.LoginResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var in dto.LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "usuario y contraseña son requeridos"})
	}

	id, err := h.engine.Login(c.Context(), in.Username, in.Password)
	if err != nil {
		return h.sessionError(c, err, "credenciales inválidas")
	}
	return c.JSON(dto.LoginResponse{
		User:     toUserResponse(id),
		Redirect: safeNext(c.Query("next"), h.homePath),
	})
}

// Logout godoc
// @Summary      Cerrar sesión
// @Description  Siempre limpia la sesión local; el aviso al backend es best effort.
// @Tags         auth
// @Success      204
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.engine.Logout(c.Context()); err != nil {
		h.log.Error().Err(err).Msg("logout")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Refresh godoc
// @Summary      Renovar access token
// @Description  Un rechazo del backend cierra la sesión y responde 401.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  dto.SessionResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	err := h.engine.RefreshSession(c.Context())
	if err == nil {
		return c.JSON(toSessionResponse(h.engine.Snapshot()))
	}
	if session.Classify(err) == session.OutcomeRejected {
		if logoutErr := h.engine.Logout(c.Context()); logoutErr != nil {
			h.log.Error().Err(logoutErr).Msg("logout tras refresh rechazado")
		}
	}
	return h.sessionError(c, err, "sesión expirada")
}

// Profile godoc
// @Summary      Recargar perfil
// @Description  Vuelve a pedir la identidad al backend y la reemplaza en memoria. Un rechazo del backend cierra la sesión.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  dto.UserResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/auth/profile [post]
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	id, err := h.engine.ReloadProfile(c.Context())
	if err != nil {
		return h.sessionError(c, err, "sesión rechazada por el backend")
	}
	return c.JSON(toUserResponse(id))
}

// sessionError traduce el Outcome del motor a HTTP.
func (h *AuthHandler) sessionError(c *fiber.Ctx, err error, rejectedMsg string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrSessionLoading):
		return loading(c)
	case errors.Is(err, domain.ErrNoSession):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHENTICATED", Message: "sesión requerida"})
	}

	switch session.Classify(err) {
	case session.OutcomeUnavailable:
		h.log.Warn().Err(err).Str("path", c.Path()).Msg("backend no disponible")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "BACKEND_UNAVAILABLE", Message: "el servidor no responde, intente más tarde"})
	default:
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_CREDENTIALS", Message: rejectedMsg})
		}
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "SESSION_REJECTED", Message: rejectedMsg})
	}
}

// safeNext acepta solo rutas locales para no abrir redirecciones a otros hosts.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	return next
}
