package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain/authz"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/permission"
)

// SessionHandler consultas de sesión, permisos y roles para la UI.
type SessionHandler struct {
	sess sessionReader
}

// NewSessionHandler construye el handler.
func NewSessionHandler(sess sessionReader) *SessionHandler {
	return &SessionHandler{sess: sess}
}

// Get godoc
// @Summary      Estado de la sesión
// @Tags         session
// @Produce      json
// @Success      200  {object}  dto.SessionResponse
// @Router       /api/session [get]
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	return c.JSON(toSessionResponse(h.sess.Snapshot()))
}

// HasPermission godoc
// @Summary      ¿La sesión tiene el permiso?
// @Tags         session
// @Produce      json
// @Param        key  path  string  true  "clave del catálogo"
// @Success      200  {object}  dto.CheckResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/session/permissions/{key} [get]
func (h *SessionHandler) HasPermission(c *fiber.Ctx) error {
	key := c.Params("key")
	if !permission.PermissionExists(key) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "UNKNOWN_PERMISSION", Message: "permiso no existe en el catálogo: " + key})
	}
	snap := h.sess.Snapshot()
	if snap.IsLoading {
		return loading(c)
	}
	return c.JSON(dto.CheckResponse{Subject: key, Granted: authz.HasPermission(snap.Identity, key)})
}

// HasRole godoc
// @Summary      ¿La sesión tiene el rol?
// @Tags         session
// @Produce      json
// @Param        role  path  string  true  "admin, manager, server o cashier"
// @Success      200   {object}  dto.CheckResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/session/roles/{role} [get]
func (h *SessionHandler) HasRole(c *fiber.Ctx) error {
	role := entity.Role(c.Params("role"))
	if !role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_ROLE", Message: "rol desconocido: " + string(role)})
	}
	snap := h.sess.Snapshot()
	if snap.IsLoading {
		return loading(c)
	}
	return c.JSON(dto.CheckResponse{Subject: string(role), Granted: authz.HasRole(snap.Identity, role)})
}

// Catalog godoc
// @Summary      Catálogo de permisos
// @Tags         session
// @Produce      json
// @Success      200  {array}  permission.Entry
// @Router       /api/catalog [get]
func (h *SessionHandler) Catalog(c *fiber.Ctx) error {
	return c.JSON(permission.Entries())
}

func loading(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "1")
	return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "SESSION_LOADING", Message: "verificando la sesión"})
}

func toSessionResponse(s session.Snapshot) dto.SessionResponse {
	out := dto.SessionResponse{
		State:           s.State.String(),
		IsLoading:       s.IsLoading,
		IsAuthenticated: s.IsAuthenticated(),
		Effective:       authz.EffectivePermissions(s.Identity),
	}
	if s.Identity != nil {
		u := toUserResponse(s.Identity)
		out.User = &u
	}
	return out
}

func toUserResponse(id *entity.Identity) dto.UserResponse {
	return dto.UserResponse{
		ID:          id.ID,
		Username:    id.Username,
		DisplayName: id.DisplayName(),
		Email:       id.Email,
		Role:        id.Role.String(),
		Permissions: id.Permissions,
		IsActive:    id.IsActive,
		IsStaff:     id.IsStaff,
		IsSuperuser: id.IsSuperuser,
	}
}
