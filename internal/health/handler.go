package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const pingTimeout = time.Second

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Checker.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler handles health check operations.
type Handler struct {
	store   Checker
	backend string
}

// NewHandler creates a health handler reporting on the named link store backend.
func NewHandler(store Checker, backend string) *Handler {
	return &Handler{store: store, backend: backend}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status  string `doc:"ok or degraded"       example:"ok"      json:"status"`
		Backend string `doc:"Link store backend"   example:"redis"   json:"backend"`
		Store   string `doc:"healthy or unhealthy" example:"healthy" json:"store"`
	}
}

// Check reports degraded, still with 200, when the link store does not answer a ping.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.Backend = h.backend

	if err := h.store.Ping(ctx); err != nil {
		resp.Body.Store = "unhealthy"
		resp.Body.Status = "degraded"
	} else {
		resp.Body.Store = "healthy"
	}

	return resp, nil
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Get(api, "/health", h.Check)
}
