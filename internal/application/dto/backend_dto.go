package dto

// Contratos JSON del backend remoto.

// BackendLoginRequest cuerpo de POST /login (username ya normalizado).
type BackendLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BackendUser Identity tal como la serializa el backend.
type BackendUser struct {
	ID          string   `json:"id" validate:"required"`
	Username    string   `json:"username" validate:"required"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
}

// BackendTokens par de tokens emitido en el login.
type BackendTokens struct {
	Access  string `json:"access" validate:"required"`
	Refresh string `json:"refresh" validate:"required"`
}

// BackendLoginResponse respuesta 2xx de POST /login.
type BackendLoginResponse struct {
	User   *BackendUser   `json:"user" validate:"required"`
	Tokens *BackendTokens `json:"tokens" validate:"required"`
}

// BackendRefreshRequest cuerpo de POST /token/refresh.
type BackendRefreshRequest struct {
	Refresh string `json:"refresh"`
}

// BackendRefreshResponse respuesta 2xx de POST /token/refresh.
type BackendRefreshResponse struct {
	Access string `json:"access" validate:"required"`
}
