package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	ErrSessionRejected    = errors.New("sesión rechazada por el backend")
	ErrRefreshRejected    = errors.New("refresh token rechazado")
	ErrBackendUnavailable = errors.New("backend no disponible")
	ErrMalformedResponse  = errors.New("respuesta del backend malformada")
	ErrNoSession          = errors.New("no hay sesión activa")
	ErrSessionLoading     = errors.New("sesión en hidratación")
	ErrUnauthorized       = errors.New("no autenticado")
	ErrForbidden          = errors.New("acceso denegado")

	// Errores de configuración: fallan en arranque, nunca se traducen en un deny silencioso.
	ErrUnknownPermission  = errors.New("permiso no definido en el catálogo")
	ErrInvalidRequirement = errors.New("requisito de acceso mal formado")
)
