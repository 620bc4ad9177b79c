package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/todos/internal/apperr"
	"github.com/splax/todos/internal/service/auth"
	jwtpkg "github.com/splax/todos/pkg/jwt"
)

type authContextKey string

// authInfo is the identity decoded from an access token.
type authInfo = jwtpkg.Payload

const contextKeyAuth authContextKey = "todos-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// authorize rejects identities that carry none of roles. With no roles the
// super admin role is required. It must run inside requireAuth.
func (r *Router) authorize(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		info, ok := authInfoFromContext(req.Context())
		if !ok {
			r.writeServiceError(w, req, apperr.Unauthorized("authentication required"))
			return
		}
		if err := auth.Authorize(info, roles...); err != nil {
			r.logger.Warn("permission denied", "user_id", info.UserID, "path", req.URL.Path)
			r.writeServiceError(w, req, err)
			return
		}
		next(w, req)
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		r.writeServiceError(w, req, apperr.Wrap(apperr.KindUnauthorized, "authentication required", err))
		return req.Context(), authInfo{}, false
	}
	claims, err := r.auth.Authenticate(token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		r.writeServiceError(w, req, err)
		return req.Context(), authInfo{}, false
	}
	info := claims.Payload
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
