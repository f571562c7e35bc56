// Package authz decide si una identidad cumple el requisito de acceso de una ruta.
// Evaluate es una función pura de (identidad, requisito, catálogo).
package authz

import (
	"fmt"
	"sort"

	"github.com/jhoicas/pos-dashboard/internal/domain"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/permission"
)

// Mode semántica de un conjunto requerido.
type Mode int

const (
	// ModeAny basta con un elemento del conjunto.
	ModeAny Mode = iota
	// ModeAll exige todos los elementos.
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "any"
}

// Requirement requisito declarativo de una ruta protegida. El valor cero
// significa "solo autenticado".
type Requirement struct {
	Roles          []entity.Role
	RoleMode       Mode
	Permissions    []string
	PermissionMode Mode
}

// Authenticated requisito vacío.
func Authenticated() Requirement { return Requirement{} }

// AnyRole requisito de pertenencia a alguno de los roles.
func AnyRole(roles ...entity.Role) Requirement {
	return Requirement{Roles: roles, RoleMode: ModeAny}
}

// AllPermissions requisito de tener todas las claves.
func AllPermissions(keys ...string) Requirement {
	return Requirement{Permissions: keys, PermissionMode: ModeAll}
}

// AnyPermission requisito de tener al menos una de las claves.
func AnyPermission(keys ...string) Requirement {
	return Requirement{Permissions: keys, PermissionMode: ModeAny}
}

// Validate detecta errores de configuración: roles fuera de la enumeración,
// claves ausentes del catálogo y modo "all" con más de un rol.
func (r Requirement) Validate() error {
	for _, role := range r.Roles {
		if !role.Valid() {
			return fmt.Errorf("%w: rol %q", domain.ErrInvalidRequirement, role)
		}
	}
	if r.RoleMode == ModeAll && len(r.Roles) > 1 {
		return fmt.Errorf("%w: modo all con %d roles (un usuario tiene un solo rol)", domain.ErrInvalidRequirement, len(r.Roles))
	}
	for _, key := range r.Permissions {
		if !permission.PermissionExists(key) {
			return fmt.Errorf("%w: %q", domain.ErrUnknownPermission, key)
		}
	}
	return nil
}

// Reason motivo de una denegación.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonRole            Reason = "role"
	ReasonPermission      Reason = "permission"
)

// Decision resultado de Evaluate. En una denegación por rol o permiso, Required
// y Actual llevan lo exigido frente a lo que tiene el usuario.
type Decision struct {
	Allowed    bool        `json:"allowed"`
	Reason     Reason      `json:"reason,omitempty"`
	Required   []string    `json:"required,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	ActualRole entity.Role `json:"actual_role,omitempty"`
	Actual     []string    `json:"actual,omitempty"`
}

// Evaluate calcula allow/deny.
func Evaluate(id *entity.Identity, req Requirement) Decision {
	if id == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}
	admin := isAdmin(id)

	if len(req.Roles) > 0 && !admin && !roleSatisfies(id, req) {
		return Decision{
			Reason:     ReasonRole,
			Required:   roleStrings(req.Roles),
			Mode:       req.RoleMode.String(),
			ActualRole: id.Role,
		}
	}

	if len(req.Permissions) > 0 && !admin {
		effective := effectiveSet(id)
		if !permissionsSatisfy(effective, req) {
			return Decision{
				Reason:     ReasonPermission,
				Required:   append([]string(nil), req.Permissions...),
				Mode:       req.PermissionMode.String(),
				ActualRole: id.Role,
				Actual:     sortedKeys(effective),
			}
		}
	}

	return Decision{Allowed: true}
}

// EffectivePermissions unión de permisos explícitos y concesiones del rol.
// Admin recibe el catálogo completo; un rol no reconocido no recibe nada.
func EffectivePermissions(id *entity.Identity) []string {
	if id == nil {
		return []string{}
	}
	if isAdmin(id) {
		return permission.GetRolePermissions(entity.RoleAdmin)
	}
	return sortedKeys(effectiveSet(id))
}

// HasPermission consulta de una sola clave para la UI.
func HasPermission(id *entity.Identity, key string) bool {
	return Evaluate(id, AllPermissions(key)).Allowed
}

// HasRole consulta de rol para la UI (admin satisface cualquier rol).
func HasRole(id *entity.Identity, role entity.Role) bool {
	return Evaluate(id, AnyRole(role)).Allowed
}

func isAdmin(id *entity.Identity) bool {
	return id.RoleRecognized() && id.Role == entity.RoleAdmin
}

func roleSatisfies(id *entity.Identity, req Requirement) bool {
	if !id.RoleRecognized() {
		return false
	}
	if req.RoleMode == ModeAll {
		for _, r := range req.Roles {
			if r != id.Role {
				return false
			}
		}
		return true
	}
	for _, r := range req.Roles {
		if r == id.Role {
			return true
		}
	}
	return false
}

func effectiveSet(id *entity.Identity) map[string]struct{} {
	set := make(map[string]struct{})
	if !id.RoleRecognized() {
		return set
	}
	for _, k := range id.Permissions {
		set[k] = struct{}{}
	}
	for _, k := range permission.GetRolePermissions(id.Role) {
		set[k] = struct{}{}
	}
	return set
}

func permissionsSatisfy(effective map[string]struct{}, req Requirement) bool {
	if req.PermissionMode == ModeAll {
		for _, k := range req.Permissions {
			if _, ok := effective[k]; !ok {
				return false
			}
		}
		return true
	}
	for _, k := range req.Permissions {
		if _, ok := effective[k]; ok {
			return true
		}
	}
	return false
}

func roleStrings(roles []entity.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
