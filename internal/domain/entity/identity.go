package entity

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role nivel de privilegio de un usuario del POS.
type Role string

// Roles válidos (enumeración cerrada).
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleServer  Role = "server"
	RoleCashier Role = "cashier"
)

// RoleLowest es el rol asignado a valores desconocidos del backend.
const RoleLowest = RoleCashier

// Roles devuelve los cuatro roles en orden de privilegio descendente.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleServer, RoleCashier}
}

// Valid indica si r pertenece a la enumeración.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleServer, RoleCashier:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// sinónimos que envía el backend (instalaciones en fr/es).
var roleSynonyms = map[string]Role{
	"admin":          RoleAdmin,
	"administrator":  RoleAdmin,
	"administrateur": RoleAdmin,
	"administrador":  RoleAdmin,
	"superadmin":     RoleAdmin,
	"manager":        RoleManager,
	"gerant":         RoleManager,
	"gérant":         RoleManager,
	"gerente":        RoleManager,
	"supervisor":     RoleManager,
	"server":         RoleServer,
	"serveur":        RoleServer,
	"mesero":         RoleServer,
	"waitstaff":      RoleServer,
	"cashier":        RoleCashier,
	"caissier":       RoleCashier,
	"cajero":         RoleCashier,
	"caja":           RoleCashier,
}

// NormalizeRole convierte el string crudo del backend a la enumeración.
// Es total: lo desconocido cae en RoleLowest con ok=false.
func NormalizeRole(raw string) (role Role, ok bool) {
	key := cases.Fold().String(strings.TrimSpace(raw))
	if r, found := roleSynonyms[key]; found {
		return r, true
	}
	return RoleLowest, false
}

// ParseRole es NormalizeRole descartando el flag de reconocimiento.
func ParseRole(raw string) Role {
	r, _ := NormalizeRole(raw)
	return r
}

// Identity principal autenticado, tal como lo verifica el backend.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	RawRole     string   `json:"raw_role,omitempty"`
	Permissions []string `json:"permissions,omitempty"` // nil = sin lista explícita
	IsActive    bool     `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`

	// UnknownRole marca que Role proviene de un valor desconocido del backend:
	// el evaluador lo trata por debajo de cualquier concesión.
	UnknownRole bool `json:"unknown_role,omitempty"`
}

// SetRawRole asigna el rol normalizado y conserva el valor crudo.
func (i *Identity) SetRawRole(raw string) {
	role, ok := NormalizeRole(raw)
	i.Role = role
	i.UnknownRole = !ok
	i.RawRole = ""
	if !ok {
		i.RawRole = raw
	}
}

// RoleRecognized indica si Role es un valor válido de la enumeración obtenido
// de un string reconocido.
func (i *Identity) RoleRecognized() bool {
	return !i.UnknownRole && i.Role.Valid()
}

// DisplayName nombre para mostrar en la UI.
func (i *Identity) DisplayName() string {
	full := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if full != "" {
		return full
	}
	return i.Username
}

// Clone copia profunda (los lectores nunca comparten el slice de permisos con la sesión).
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Permissions != nil {
		c.Permissions = append([]string(nil), i.Permissions...)
	}
	return &c
}
