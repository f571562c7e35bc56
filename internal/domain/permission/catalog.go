// Package permission contiene el catálogo estático de permisos del POS y las
// concesiones por defecto de cada rol.
package permission

import (
	"sort"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
)

// Claves de permiso.
const (
	DashboardView = "dashboard.view"

	SalesView   = "sales.view"
	SalesCreate = "sales.create"
	SalesRefund = "sales.refund"

	OrdersView   = "orders.view"
	OrdersManage = "orders.manage"

	ProductsView   = "products.view"
	ProductsManage = "products.manage"

	StocksView   = "stocks.view"
	StocksManage = "stocks.manage"

	SuppliesView   = "supplies.view"
	SuppliesManage = "supplies.manage"

	CashRegisterOpen  = "cash.open"
	CashRegisterClose = "cash.close"

	ReportsView  = "reports.view"
	ReportsPrint = "reports.print"

	UsersView   = "users.view"
	UsersManage = "users.manage"

	SettingsManage = "settings.manage"
)

// Categorías del catálogo.
const (
	CategoryGeneral   = "general"
	CategorySales     = "sales"
	CategoryCatalog   = "catalog"
	CategoryInventory = "inventory"
	CategoryCash      = "cash"
	CategoryReports   = "reports"
	CategoryAdmin     = "administration"
)

// Entry fila del catálogo. Roles lista los roles no-admin con la concesión por
// defecto; admin tiene todas las claves sin necesidad de enumerarlo.
type Entry struct {
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Category string        `json:"category"`
	Roles    []entity.Role `json:"roles"`
}

var (
	manager = entity.RoleManager
	server  = entity.RoleServer
	cashier = entity.RoleCashier
)

var entries = []Entry{
	{DashboardView, "Ver tablero", CategoryGeneral, []entity.Role{manager, server, cashier}},

	{SalesView, "Ver ventas", CategorySales, []entity.Role{manager, server, cashier}},
	{SalesCreate, "Registrar ventas", CategorySales, []entity.Role{manager, server, cashier}},
	{SalesRefund, "Anular o reembolsar ventas", CategorySales, []entity.Role{manager}},
	{OrdersView, "Ver comandas", CategorySales, []entity.Role{manager, server, cashier}},
	{OrdersManage, "Tomar y modificar comandas", CategorySales, []entity.Role{manager, server}},

	{ProductsView, "Ver productos", CategoryCatalog, []entity.Role{manager, server, cashier}},
	{ProductsManage, "Gestionar productos", CategoryCatalog, []entity.Role{manager}},

	{StocksView, "Ver existencias", CategoryInventory, []entity.Role{manager, server}},
	{StocksManage, "Ajustar existencias", CategoryInventory, []entity.Role{manager}},
	{SuppliesView, "Ver aprovisionamientos", CategoryInventory, []entity.Role{manager}},
	{SuppliesManage, "Gestionar aprovisionamientos", CategoryInventory, []entity.Role{manager}},

	{CashRegisterOpen, "Abrir caja", CategoryCash, []entity.Role{manager, cashier}},
	{CashRegisterClose, "Cerrar caja", CategoryCash, []entity.Role{manager, cashier}},

	{ReportsView, "Ver reportes", CategoryReports, []entity.Role{manager}},
	{ReportsPrint, "Imprimir reportes", CategoryReports, []entity.Role{manager, cashier}},

	{UsersView, "Ver usuarios", CategoryAdmin, []entity.Role{manager}},
	{UsersManage, "Gestionar usuarios", CategoryAdmin, nil},
	{SettingsManage, "Configuración del sistema", CategoryAdmin, nil},
}

var (
	index  map[string]Entry
	grants map[entity.Role]map[string]struct{}
)

func init() {
	index = make(map[string]Entry, len(entries))
	grants = make(map[entity.Role]map[string]struct{}, len(entity.Roles()))
	for _, r := range entity.Roles() {
		grants[r] = make(map[string]struct{})
	}
	for _, e := range entries {
		if _, dup := index[e.Key]; dup {
			panic("permission: clave duplicada en el catálogo: " + e.Key)
		}
		index[e.Key] = e
		grants[entity.RoleAdmin][e.Key] = struct{}{}
		for _, r := range e.Roles {
			if !r.Valid() || r == entity.RoleAdmin {
				panic("permission: rol inválido en " + e.Key + ": " + string(r))
			}
			grants[r][e.Key] = struct{}{}
		}
	}
}

// Keys devuelve todas las claves del catálogo, ordenadas.
func Keys() []string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries devuelve una copia del catálogo en orden de declaración.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Roles = append([]entity.Role(nil), e.Roles...)
	}
	return out
}

// GetRolePermissions claves concedidas al rol. Para admin es el catálogo completo.
// Un rol desconocido no tiene concesiones.
func GetRolePermissions(role entity.Role) []string {
	set, ok := grants[role]
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoleHasPermission prueba de pertenencia; false para claves o roles desconocidos.
func RoleHasPermission(role entity.Role, key string) bool {
	set, ok := grants[role]
	if !ok {
		return false
	}
	_, ok = set[key]
	return ok
}

// PermissionExists indica si la clave está definida.
func PermissionExists(key string) bool {
	_, ok := index[key]
	return ok
}

// GetPermissionInfo devuelve la entrada del catálogo, si existe.
func GetPermissionInfo(key string) (Entry, bool) {
	e, ok := index[key]
	if !ok {
		return Entry{}, false
	}
	e.Roles = append([]entity.Role(nil), e.Roles...)
	return e, true
}
