package http

import (
	"fmt"

	"github.com/jhoicas/pos-dashboard/internal/domain/authz"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/permission"
)

// ProtectedRoute vista del dashboard y el requisito para verla.
type ProtectedRoute struct {
	Path        string
	View        string
	Title       string
	Requirement authz.Requirement
	Denied      DenialHandler // nil = vista de acceso denegado por defecto
}

// DefaultRoutes secciones del dashboard del POS.
func DefaultRoutes() []ProtectedRoute {
	return []ProtectedRoute{
		{Path: "/dashboard", View: "dashboard", Title: "Inicio", Requirement: authz.AllPermissions(permission.DashboardView)},
		{Path: "/sales", View: "sales", Title: "Ventas", Requirement: authz.AllPermissions(permission.SalesView)},
		{Path: "/products", View: "products", Title: "Productos", Requirement: authz.AllPermissions(permission.ProductsView)},
		{Path: "/stocks", View: "stocks", Title: "Existencias", Requirement: authz.AllPermissions(permission.StocksView)},
		{Path: "/supplies", View: "supplies", Title: "Suministros", Requirement: authz.AnyPermission(permission.SuppliesView, permission.SuppliesManage)},
		{Path: "/reports", View: "reports", Title: "Reportes", Requirement: authz.AllPermissions(permission.ReportsView)},
		{Path: "/users", View: "users", Title: "Usuarios", Requirement: authz.Requirement{
			Roles:          []entity.Role{entity.RoleAdmin, entity.RoleManager},
			RoleMode:       authz.ModeAny,
			Permissions:    []string{permission.UsersView},
			PermissionMode: authz.ModeAll,
		}},
		{Path: "/settings", View: "settings", Title: "Configuración", Requirement: authz.AnyRole(entity.RoleAdmin)},
	}
}

// ValidateRoutes verifica cada requisito contra el catálogo. Una clave
// desconocida es un error de configuración y debe impedir el arranque.
func ValidateRoutes(routes []ProtectedRoute) error {
	seen := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if _, dup := seen[r.Path]; dup {
			return fmt.Errorf("ruta %s duplicada", r.Path)
		}
		seen[r.Path] = struct{}{}
		if err := r.Requirement.Validate(); err != nil {
			return fmt.Errorf("ruta %s: %w", r.Path, err)
		}
	}
	return nil
}
