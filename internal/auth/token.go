package auth

import (
	"net/http"
	"strings"

	"callmon-api/internal/http/httperr"
	"callmon-api/internal/observability/logger"

	"go.uber.org/zap"
)

// TokenStore stores static service-to-service authentication tokens.
// Tokens are registered once at startup from configuration; the map is
// read-only afterwards, so no locking is needed.
type TokenStore struct {
	tokens map[string]string // token -> client name
}

// NewTokenStore creates a new token store
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]string),
	}
}

// RegisterToken registers a token for a client
func (s *TokenStore) RegisterToken(token, clientName string) {
	if token != "" {
		s.tokens[token] = clientName
	}
}

// ValidateToken validates a token and returns the client name
func (s *TokenStore) ValidateToken(token string) (string, bool) {
	client, ok := s.tokens[token]
	return client, ok
}

// Empty reports whether any token is registered. An empty store means
// authentication is not configured and the API runs open.
func (s *TokenStore) Empty() bool {
	return len(s.tokens) == 0
}

// maskToken keeps a short prefix for log correlation
func maskToken(token string) string {
	const visible = 8
	if len(token) <= visible {
		return "***"
	}
	return token[:visible] + "..."
}

// Middleware validates bearer tokens against the store. When the store
// is empty, requests pass through unauthenticated.
func Middleware(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store.Empty() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := logger.GetLogger(ctx)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn(ctx, "authentication failed",
					zap.String("auth_failure_reason", "missing_authorization"),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn(ctx, "authentication failed",
					zap.String("auth_failure_reason", "invalid_scheme"),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidScheme, "invalid authorization scheme, expected Bearer")
				return
			}

			client, ok := store.ValidateToken(parts[1])
			if !ok {
				log.Warn(ctx, "authentication failed",
					zap.String("auth_failure_reason", "invalid_token"),
					zap.String("token_prefix", maskToken(parts[1])),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "invalid token")
				return
			}

			ctx = logger.SetClientInContext(ctx, client)

			log.Info(ctx, "authenticated request",
				zap.String("auth_type", "s2s"),
				zap.String("client", client),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
