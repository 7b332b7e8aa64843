package http

import (
	"context"
	"net/http"
	"strings"

	"budget/internal/core"
	applog "budget/internal/log"
)

type principalKey struct{}

type tokenKey struct{}

// authenticated resolves the bearer token into a Principal before calling h.
func (s *Server) authenticated(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, core.ErrNotAuthenticated)
			return
		}
		p, err := s.deps.Sessions.Verify(token)
		if err != nil {
			applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected session token", applog.FieldError, err)
			s.writeError(w, r, core.ErrNotAuthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, &p)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldPrincipalID, p.ID))
		h(w, r.WithContext(ctx))
	})
}

// principalFrom returns the caller, or nil outside authenticated routes.
func principalFrom(ctx context.Context) *core.Principal {
	p, _ := ctx.Value(principalKey{}).(*core.Principal)
	return p
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
