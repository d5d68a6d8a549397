package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "glucolog/internal/api/context"
	"glucolog/internal/api/handlers"
	"glucolog/internal/api/middleware"
)

type Dependencies struct {
	APIKeyHandler       *handlers.APIKeyHandler
	UsageHandler        *handlers.UsageHandler
	AuditHandler        *handlers.AuditHandler
	QuotaHandler        *handlers.QuotaHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	AdmissionMiddleware *middleware.AdmissionMiddleware
}

type Router struct {
	*httprouter.Router
	admission *middleware.AdmissionMiddleware
}

func NewRouter(deps *Dependencies) *Router {
	router := httprouter.New()

	// Ops
	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware

	// Key management (session only)
	router.GET("/api/v1/keys", chain(deps.APIKeyHandler.List, authMid.Handle))
	router.POST("/api/v1/keys", chain(deps.APIKeyHandler.Create, authMid.Handle))
	router.PATCH("/api/v1/keys/:key_id", chain(deps.APIKeyHandler.Rename, authMid.Handle))
	router.POST("/api/v1/keys/:key_id/revoke", chain(deps.APIKeyHandler.Revoke, authMid.Handle))
	router.DELETE("/api/v1/keys/:key_id", chain(deps.APIKeyHandler.Delete, authMid.Handle))

	// Self-service analytics
	router.GET("/api/v1/usage", chain(deps.UsageHandler.Get, authMid.Handle))
	router.GET("/api/v1/audit", chain(deps.AuditHandler.List, authMid.Handle))

	r := &Router{Router: router, admission: deps.AdmissionMiddleware}

	// Admitted API
	r.Mount(http.MethodGet, "/api/v1/quota", deps.QuotaHandler.Get)

	return r
}

// Mount registers a domain handler behind admission control. The route path
// is the endpoint class the caller's window is charged against.
func (r *Router) Mount(method, path string, handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) {
	mws := append([]func(http.HandlerFunc) http.HandlerFunc{r.admission.Guard(path)}, middlewares...)
	r.Handle(method, path, chain(handler, mws...))
}

// MountAuthenticated is Mount for routes anonymous callers may not use.
func (r *Router) MountAuthenticated(method, path string, handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) {
	mws := append([]func(http.HandlerFunc) http.HandlerFunc{r.admission.Authenticated(path)}, middlewares...)
	r.Handle(method, path, chain(handler, mws...))
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
