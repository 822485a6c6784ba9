package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Token  string
}

type contextKeyIdentityType struct{}

var contextKeyIdentity = contextKeyIdentityType{}

// ContextWithIdentity returns a new context with the identity added to it.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext retrieves the identity from the context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextKeyIdentity).(*Identity)
	return identity
}

// identityCache is an in-memory cache for verified tokens. Lookups are
// by token string, not by user, so a fresh token always triggers a new
// verification.
type identityCache struct {
	mutex   sync.RWMutex
	cache   map[string]identityCacheEntry
	maxAge  time.Duration
	maxSize int
}

type identityCacheEntry struct {
	identity Identity
	written  time.Time
}

func newIdentityCache() *identityCache {
	return &identityCache{
		cache:   make(map[string]identityCacheEntry),
		maxAge:  5 * time.Minute,
		maxSize: 10000,
	}
}

func (c *identityCache) read(token string) *Identity {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.cache[token]
	if !ok || time.Since(entry.written) > c.maxAge {
		return nil
	}
	identity := entry.identity
	return &identity
}

func (c *identityCache) write(token string, identity Identity) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.cache) >= c.maxSize {
		c.cache = make(map[string]identityCacheEntry)
	}
	c.cache[token] = identityCacheEntry{identity: identity, written: time.Now()}
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// verifyToken resolves a bearer token to an identity. When the auth
// provider's JWT secret is configured, tokens are verified locally;
// otherwise the provider is asked.
func (a *API) verifyToken(ctx context.Context, token string) (*Identity, error) {
	if identity := a.identityCache.read(token); identity != nil {
		return identity, nil
	}

	var identity Identity
	if len(a.jwtSecret) > 0 {
		claims := tokenClaims{}
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return a.jwtSecret, nil
		})
		if err != nil || !parsed.Valid {
			return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "invalid token")
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return nil, civic.ErrorFromStatus(http.StatusUnauthorized, "invalid token subject")
		}
		identity = Identity{UserID: userID, Email: claims.Email, Token: token}
	} else {
		user, err := a.authn.GetUser(ctx, token)
		if err != nil {
			return nil, err
		}
		identity = Identity{UserID: user.ID, Email: user.Email, Token: token}
	}

	a.identityCache.write(token, identity)
	return &identity, nil
}

func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) == 0 || bearer == "null" {
		return ""
	}
	if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
		return bearer[7:]
	}
	return bearer
}

// authMiddleware authenticates the bearer token when one is present
// and stores the identity in the request context. Requests without a
// token pass through anonymously; individual routes decide whether
// they require an identity.
func (a *API) authMiddleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if len(token) == 0 {
				h.ServeHTTP(w, r)
				return
			}
			identity, err := a.verifyToken(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := ContextWithIdentity(r.Context(), identity)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity.UserID.String())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authorized wraps a handler that requires an authenticated caller.
func (a *API) authorized(handler func(w http.ResponseWriter, r *http.Request, identity *Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil {
			writeError(w, civic.ErrorFromStatus(http.StatusUnauthorized, "authentication required"))
			return
		}
		handler(w, r, identity)
	}
}
