package dto

// Contratos JSON expuestos a la capa de UI.

// LoginRequest entrada del formulario de login.
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=150"`
	Password string `json:"password" form:"password" validate:"required,max=256"`
}

// UserResponse identidad sin tokens.
type UserResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
}

// LoginResponse salida del login: usuario y destino al que volver.
type LoginResponse struct {
	User     UserResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

// SessionResponse estado observable de la sesión.
type SessionResponse struct {
	State           string        `json:"state"`
	IsLoading       bool          `json:"is_loading"`
	IsAuthenticated bool          `json:"is_authenticated"`
	User            *UserResponse `json:"user,omitempty"`
	// Effective permisos explícitos más los del rol; vacío sin sesión.
	Effective []string `json:"effective_permissions"`
}

// CheckResponse resultado de una consulta de permiso o rol.
type CheckResponse struct {
	Subject string `json:"subject"`
	Granted bool   `json:"granted"`
}

// AccessDeniedResponse vista de acceso denegado con el diagnóstico.
type AccessDeniedResponse struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Path       string   `json:"path"`
	Reason     string   `json:"reason"`
	Mode       string   `json:"mode,omitempty"`
	Required   []string `json:"required"`
	ActualRole string   `json:"actual_role"`
	Actual     []string `json:"actual,omitempty"`
}

// ViewResponse descriptor de una vista protegida que renderiza la UI.
type ViewResponse struct {
	View  string       `json:"view"`
	Title string       `json:"title"`
	User  UserResponse `json:"user"`
}
