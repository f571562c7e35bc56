// Package session implementa el motor de sesión del dashboard: hidratación al
// arrancar, login, logout, refresh silencioso y recarga de perfil. Es el único
// escritor del estado de sesión; el resto del proceso solo lee Snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/pos-dashboard/internal/domain"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/repository"
	"github.com/jhoicas/pos-dashboard/pkg/jwt"
)

// State estado del motor.
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Snapshot vista inmutable del estado para los lectores.
type Snapshot struct {
	State     State
	Identity  *entity.Identity // nil si no hay sesión
	IsLoading bool
	InFlight  int // operaciones de red en curso
}

// IsAuthenticated derivado: hay identidad.
func (s Snapshot) IsAuthenticated() bool { return s.Identity != nil }

// HydrateResult resultado de la hidratación.
type HydrateResult struct {
	State State
	// RedirectFromLogin indica que se restauró una sesión válida mientras la ruta
	// actual era la de login; la navegación la decide la capa de UI.
	RedirectFromLogin bool
}

// Options parámetros del motor.
type Options struct {
	Timeout   time.Duration // por llamada al backend; 0 = sin límite propio
	LoginPath string
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Engine motor de sesión. Seguro para uso concurrente.
type Engine struct {
	store     repository.CredentialStore
	backend   Backend
	log       zerolog.Logger
	timeout   time.Duration
	loginPath string
	now       func() time.Time

	mu           sync.RWMutex
	state        State
	identity     *entity.Identity
	accessToken  string
	refreshToken string
	loading      bool
	inFlight     int

	hydrateOnce sync.Once
	hydrateRes  HydrateResult
	hydrateErr  error
	ready       chan struct{}

	refreshGroup singleflight.Group
}

// NewEngine construye el motor en estado Uninitialized con isLoading=true:
// ninguna decisión de UI es posible hasta que termine Hydrate.
func NewEngine(store repository.CredentialStore, backend Backend, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Engine{
		store:     store,
		backend:   backend,
		log:       opts.Logger,
		timeout:   opts.Timeout,
		loginPath: loginPath,
		now:       now,
		state:     StateUninitialized,
		loading:   true,
		ready:     make(chan struct{}),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Lectura
// ──────────────────────────────────────────────────────────────────────────────

// Snapshot copia del estado actual.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		State:     e.state,
		Identity:  e.identity.Clone(),
		IsLoading: e.loading,
		InFlight:  e.inFlight,
	}
}

// IsLoading true hasta el primer resultado de hidratación.
func (e *Engine) IsLoading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// Identity identidad actual o nil.
func (e *Engine) Identity() *entity.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity.Clone()
}

// AccessToken último access token bueno conocido ("" sin sesión).
func (e *Engine) AccessToken() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accessToken
}

// Ready se cierra cuando la hidratación termina, con éxito o sin él.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// ShouldRedirectFromLogin indica si una visita a route debe salir de la
// página de login porque ya hay sesión.
func (e *Engine) ShouldRedirectFromLogin(route string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.loading && e.identity != nil && route == e.loginPath
}

// ──────────────────────────────────────────────────────────────────────────────
// Hidratación
// ──────────────────────────────────────────────────────────────────────────────

// Hydrate restaura la sesión guardada validándola contra el backend. Se ejecuta
// una sola vez por proceso; llamadas posteriores devuelven el mismo resultado.
// Cualquier fallo deja el motor en Anonymous con el Credential Store limpio.
func (e *Engine) Hydrate(ctx context.Context, currentRoute string) (HydrateResult, error) {
	e.hydrateOnce.Do(func() {
		e.hydrateRes, e.hydrateErr = e.hydrate(ctx, currentRoute)
	})
	return e.hydrateRes, e.hydrateErr
}

func (e *Engine) hydrate(ctx context.Context, currentRoute string) (res HydrateResult, err error) {
	e.setState(StateHydrating)

	// isLoading se libera en toda salida, incluido un pánico del store o del backend.
	defer e.finishLoading()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: pánico durante la hidratación: %v", r)
			res = HydrateResult{State: StateAnonymous}
			e.failHydration(ctx, err)
		}
	}()

	creds, err := e.loadCredentials(ctx)
	if err != nil {
		err = fmt.Errorf("cargar credenciales: %w", err)
		e.failHydration(ctx, err)
		return HydrateResult{State: StateAnonymous}, err
	}
	if !creds.Complete() {
		e.toAnonymous()
		e.log.Debug().Msg("sin credenciales guardadas")
		return HydrateResult{State: StateAnonymous}, nil
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	verified, err := e.backend.Profile(callCtx, creds.AccessToken)
	if err == nil && verified == nil {
		err = fmt.Errorf("%w: perfil vacío", domain.ErrMalformedResponse)
	}
	if err != nil {
		err = fmt.Errorf("verificar perfil: %w", err)
		e.failHydration(ctx, err)
		return HydrateResult{State: StateAnonymous}, err
	}

	// La identidad se toma de la respuesta verificada, no de la caché local.
	creds.Identity = verified
	e.persist(ctx, *creds)
	e.setAuthenticated(verified, creds.AccessToken, creds.RefreshToken)
	e.log.Info().
		Str("username", verified.Username).
		Str("role", verified.Role.String()).
		Msg("sesión restaurada")

	return HydrateResult{
		State:             StateAuthenticated,
		RedirectFromLogin: currentRoute == e.loginPath,
	}, nil
}

// loadCredentials lee el store con el mismo plazo que una llamada al backend:
// un store colgado no puede dejar isLoading en true.
func (e *Engine) loadCredentials(ctx context.Context) (*entity.Credentials, error) {
	loadCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.store.Load(loadCtx)
}

func (e *Engine) failHydration(ctx context.Context, cause error) {
	e.toAnonymous()
	e.log.Warn().Err(cause).Str("outcome", Classify(cause).String()).Msg("hidratación fallida, sesión anónima")
	if err := e.clearStore(ctx); err != nil {
		e.log.Error().Err(err).Msg("limpiar credenciales tras hidratación fallida")
	}
}

func (e *Engine) finishLoading() {
	e.mu.Lock()
	wasLoading := e.loading
	e.loading = false
	if e.state == StateHydrating || e.state == StateUninitialized {
		e.state = StateAnonymous
	}
	e.mu.Unlock()
	if wasLoading {
		close(e.ready)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Login / Logout
// ──────────────────────────────────────────────────────────────────────────────

// Login autentica contra el backend. Ante credenciales inválidas o error del
// backend devuelve el error y deja la sesión como estaba.
func (e *Engine) Login(ctx context.Context, username, password string) (*entity.Identity, error) {
	if e.IsLoading() {
		return nil, domain.ErrSessionLoading
	}
	release := e.track()
	defer release()

	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: usuario y contraseña requeridos", domain.ErrInvalidInput)
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	res, err := e.backend.Login(callCtx, username, password)
	if err != nil {
		e.log.Info().Str("username", username).Str("outcome", Classify(err).String()).Msg("login fallido")
		return nil, err
	}
	if res == nil || res.Identity == nil || res.AccessToken == "" || res.RefreshToken == "" {
		return nil, fmt.Errorf("%w: login sin identidad o tokens", domain.ErrMalformedResponse)
	}

	e.persist(ctx, entity.Credentials{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Identity:     res.Identity,
	})
	e.setAuthenticated(res.Identity, res.AccessToken, res.RefreshToken)
	e.log.Info().
		Str("username", res.Identity.Username).
		Str("role", res.Identity.Role.String()).
		Bool("role_recognized", res.Identity.RoleRecognized()).
		Msg("sesión iniciada")

	return res.Identity.Clone(), nil
}

// Logout avisa al backend (best effort) y siempre limpia el estado local.
// Solo devuelve error si el Credential Store no pudo limpiarse.
func (e *Engine) Logout(ctx context.Context) error {
	release := e.track()
	defer release()

	access := e.AccessToken()
	if access != "" {
		callCtx, cancel := e.callContext(ctx)
		if err := e.backend.Logout(callCtx, access); err != nil {
			e.log.Warn().Err(err).Msg("aviso de logout al backend fallido, se continúa localmente")
		}
		cancel()
	}

	e.toAnonymous()
	if err := e.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("limpiar credenciales: %w", err)
	}
	e.log.Info().Msg("sesión cerrada")
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Refresh / perfil
// ──────────────────────────────────────────────────────────────────────────────

// RefreshSession obtiene un access token nuevo con el refresh token. Solo
// cambia el access token. No cierra la sesión ante un rechazo: el llamador
// decide si reintentar o forzar Logout. Llamadas concurrentes comparten una
// única petición al backend.
//
// La petición compartida no hereda la cancelación de quien la inició; cada
// llamador deja de esperar cuando se cancela su propio ctx.
func (e *Engine) RefreshSession(ctx context.Context) error {
	ch := e.refreshGroup.DoChan("refresh", func() (any, error) {
		return nil, e.refresh(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: refresh: %w", domain.ErrBackendUnavailable, ctx.Err())
	}
}

func (e *Engine) refresh(ctx context.Context) error {
	release := e.track()
	defer release()

	e.mu.RLock()
	refreshToken := e.refreshToken
	e.mu.RUnlock()
	if refreshToken == "" {
		return domain.ErrNoSession
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	access, err := e.backend.Refresh(callCtx, refreshToken)
	if err != nil {
		e.log.Warn().Err(err).Str("outcome", Classify(err).String()).Msg("refresh fallido")
		return err
	}
	if access == "" {
		return fmt.Errorf("%w: refresh sin access token", domain.ErrMalformedResponse)
	}

	e.mu.Lock()
	if e.refreshToken != refreshToken || e.identity == nil {
		// logout o cambio de usuario mientras la petición estaba en curso
		e.mu.Unlock()
		return domain.ErrNoSession
	}
	e.accessToken = access
	creds := entity.Credentials{AccessToken: access, RefreshToken: refreshToken, Identity: e.identity.Clone()}
	e.mu.Unlock()

	e.persist(ctx, creds)
	e.log.Debug().Msg("access token renovado")
	return nil
}

// EnsureFresh renueva el access token si vence dentro de leeway.
func (e *Engine) EnsureFresh(ctx context.Context, leeway time.Duration) error {
	access := e.AccessToken()
	if access == "" {
		return domain.ErrNoSession
	}
	if !jwt.ExpiresWithin(access, leeway, e.now()) {
		return nil
	}
	return e.RefreshSession(ctx)
}

// ReloadProfile vuelve a pedir el perfil y reemplaza la identidad completa,
// sin recargar el proceso. Un rechazo del backend invalida la sesión local;
// un fallo de transporte la deja intacta.
func (e *Engine) ReloadProfile(ctx context.Context) (*entity.Identity, error) {
	release := e.track()
	defer release()

	access := e.AccessToken()
	if access == "" {
		return nil, domain.ErrNoSession
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	id, err := e.backend.Profile(callCtx, access)
	if err != nil {
		if errors.Is(err, domain.ErrSessionRejected) {
			e.invalidate(ctx, access, err)
		}
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: perfil vacío", domain.ErrMalformedResponse)
	}

	e.mu.Lock()
	if e.accessToken != access || e.identity == nil {
		e.mu.Unlock()
		return nil, domain.ErrNoSession
	}
	e.identity = id.Clone()
	creds := entity.Credentials{AccessToken: e.accessToken, RefreshToken: e.refreshToken, Identity: id.Clone()}
	e.mu.Unlock()

	e.persist(ctx, creds)
	return id.Clone(), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de estado
// ──────────────────────────────────────────────────────────────────────────────

// track registra una operación en curso; la función devuelta la libera una vez.
func (e *Engine) track() func() {
	e.mu.Lock()
	e.inFlight++
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.inFlight--
			e.mu.Unlock()
		})
	}
}

// invalidate descarta la sesión si access sigue siendo el token vigente.
func (e *Engine) invalidate(ctx context.Context, access string, cause error) {
	e.mu.Lock()
	if e.accessToken != access || e.identity == nil {
		e.mu.Unlock()
		return
	}
	e.identity = nil
	e.accessToken = ""
	e.refreshToken = ""
	e.state = StateAnonymous
	e.mu.Unlock()

	e.log.Info().Err(cause).Msg("sesión invalidada por el backend")
	if err := e.clearStore(ctx); err != nil {
		e.log.Error().Err(err).Msg("limpiar credenciales tras invalidación")
	}
}

// clearStore limpia el Credential Store con plazo propio. Un pánico del store
// se devuelve como error.
func (e *Engine) clearStore(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pánico al limpiar credenciales: %v", r)
		}
	}()
	clearCtx, cancel := e.callContext(context.WithoutCancel(ctx))
	defer cancel()
	return e.store.Clear(clearCtx)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// persist guarda las credenciales. Un fallo de escritura no invalida la sesión
// en memoria; solo se pierde la restauración tras un reinicio.
func (e *Engine) persist(ctx context.Context, creds entity.Credentials) {
	saveCtx, cancel := e.callContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.store.Save(saveCtx, creds); err != nil {
		e.log.Error().Err(err).Msg("guardar credenciales")
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) setAuthenticated(id *entity.Identity, access, refresh string) {
	e.mu.Lock()
	e.identity = id.Clone()
	e.accessToken = access
	e.refreshToken = refresh
	e.state = StateAuthenticated
	e.mu.Unlock()
}

func (e *Engine) toAnonymous() {
	e.mu.Lock()
	e.identity = nil
	e.accessToken = ""
	e.refreshToken = ""
	e.state = StateAnonymous
	e.mu.Unlock()
}
