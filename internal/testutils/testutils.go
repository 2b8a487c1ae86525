package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams puts path parameters into the chi route context so a
// handler can be called directly without going through the router.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithBearer sets the Authorization header the session middleware reads.
func WithBearer(req *http.Request, session string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+session)
	return req
}
