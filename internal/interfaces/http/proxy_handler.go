package http

import (
	"context"
	"io"
	nethttp "net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
)

const maxProxyBody = 8 << 20

// forwarder lo implementa *backend.Client.
type forwarder interface {
	Forward(ctx context.Context, method, path, rawQuery, accessToken, contentType string, body []byte) (*nethttp.Response, error)
}

// ProxyHandler reenvía /api/backend/* al backend con el token de la sesión.
type ProxyHandler struct {
	engine  *session.Engine
	backend forwarder
	leeway  time.Duration
	log     zerolog.Logger
}

// NewProxyHandler construye el proxy.
func NewProxyHandler(engine *session.Engine, backend forwarder, leeway time.Duration, log zerolog.Logger) *ProxyHandler {
	return &ProxyHandler{engine: engine, backend: backend, leeway: leeway, log: log}
}

// Forward godoc
// @Summary      Proxy al backend
// @Description  Renueva el token antes de vencer; ante un 401 renueva una vez y reintenta. Si la renovación es rechazada cierra la sesión.
// @Tags         backend
// @Param        path  path  string  true  "ruta en el backend"
// @Success      200
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/backend/{path} [get]
func (h *ProxyHandler) Forward(c *fiber.Ctx) error {
	ctx := c.Context()
	if err := h.engine.EnsureFresh(ctx, h.leeway); err != nil {
		// Sin red todavía se puede intentar con el token actual.
		if session.Classify(err) == session.OutcomeRejected {
			return h.expire(c, err)
		}
		h.log.Warn().Err(err).Msg("refresh anticipado fallido")
	}

	resp, err := h.forward(c)
	if err != nil {
		return badGateway(c)
	}
	if resp.StatusCode == nethttp.StatusUnauthorized {
		_ = resp.Body.Close()
		if err := h.engine.RefreshSession(ctx); err != nil {
			if session.Classify(err) == session.OutcomeRejected {
				return h.expire(c, err)
			}
			return badGateway(c)
		}
		if resp, err = h.forward(c); err != nil {
			return badGateway(c)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		return badGateway(c)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	return c.Status(resp.StatusCode).Send(body)
}

func (h *ProxyHandler) forward(c *fiber.Ctx) (*nethttp.Response, error) {
	resp, err := h.backend.Forward(c.Context(), c.Method(), "/"+c.Params("*"),
		string(c.Request().URI().QueryString()), h.engine.AccessToken(),
		c.Get(fiber.HeaderContentType), c.Body())
	if err != nil {
		h.log.Warn().Err(err).Str("path", c.Params("*")).Msg("proxy")
	}
	return resp, err
}

// expire cierra la sesión tras un refresh rechazado.
func (h *ProxyHandler) expire(c *fiber.Ctx, cause error) error {
	h.log.Info().Err(cause).Msg("refresh rechazado, se cierra la sesión")
	if err := h.engine.Logout(c.Context()); err != nil {
		h.log.Error().Err(err).Msg("logout forzado")
	}
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "SESSION_EXPIRED", Message: "la sesión expiró, inicie sesión de nuevo"})
}

func badGateway(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "BACKEND_UNAVAILABLE", Message: "el servidor no responde, intente más tarde"})
}
