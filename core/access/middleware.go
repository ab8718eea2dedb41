package access

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/agrigate/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyIdentity contextKey = "_identity_"

// client facing messages of the middleware
const (
	MessageTokenRequired = "Authentication token required."
	MessageTokenInvalid  = "Invalid or expired token."
)

// ContextWithIdentity returns a new context with the authenticated identity
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext returns the authenticated identity, or nil
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextKeyIdentity).(*Identity)
	return identity
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// It returns an empty string if there is none.
func BearerToken(r *http.Request) string {
	bearer := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(bearer) < 8 || !strings.EqualFold(bearer[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(bearer[7:])
}

// NewJwtMiddleware returns a middleware which requires a valid bearer token.
//
// A request without token is answered with http.StatusUnauthorized, a request with a
// token that cannot be verified (bad signature, expired, malformed) with
// http.StatusForbidden. The two outcomes are never conflated.
func NewJwtMiddleware(issuer *Issuer) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rlog := logger.FromContext(r.Context())

			tokenString := BearerToken(r)
			if tokenString == "" {
				rlog.Debugln("no bearer token for", r.Method, r.URL.Path)
				writeMessage(w, http.StatusUnauthorized, MessageTokenRequired)
				return
			}

			identity, err := issuer.Parse(tokenString)
			if err != nil {
				rlog.WithError(err).Infoln("rejected token for", r.Method, r.URL.Path)
				writeMessage(w, http.StatusForbidden, MessageTokenInvalid)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity.Email)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"message": message})
	w.Write(body)
}
