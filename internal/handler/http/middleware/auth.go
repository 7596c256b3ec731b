package middleware

import (
	"context"
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.Unauthorized(w, "Invalid token")
				return
			}

			tokenType, ok := claims["type"].(string)
			if tokenType != "access" || !ok {
				response.Unauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// RequireManager requires the manager role and records the token subject as the acting reviewer
func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, role, err := jwt.Actor(r.Context())
		if err != nil {
			response.Unauthorized(w, "Invalid token")
			return
		}

		if role != jwt.RoleManager {
			response.Forbidden(w, "Manager access required")
			return
		}

		next.ServeHTTP(w, withActor(r, subject, role))
	})
}

// RequireActor accepts any role and records the token subject and role.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, role, err := jwt.Actor(r.Context())
		if err != nil || subject == "" {
			response.Unauthorized(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, withActor(r, subject, role))
	})
}

type actorKey struct{}

type roleKey struct{}

func withActor(r *http.Request, subject, role string) *http.Request {
	ctx := context.WithValue(r.Context(), actorKey{}, subject)
	return r.WithContext(context.WithValue(ctx, roleKey{}, role))
}

// ActorFromContext returns the subject set by RequireManager or RequireActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}

// IsManager reports whether the acting token carries the manager role.
func IsManager(ctx context.Context) bool {
	role, _ := ctx.Value(roleKey{}).(string)
	return role == jwt.RoleManager
}
