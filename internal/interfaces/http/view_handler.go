package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
)

// ViewHandler descriptor de la vista; la UI pinta el contenido. Solo se
// alcanza detrás de RouteGuard.
func ViewHandler(route ProtectedRoute) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		if id == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHENTICATED", Message: "sesión requerida"})
		}
		return c.JSON(dto.ViewResponse{View: route.View, Title: route.Title, User: toUserResponse(id)})
	}
}
