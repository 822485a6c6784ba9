// Package api implements the CivicVoice REST backend: issue, comment,
// upvote and profile resources backed by postgres, with authentication
// delegated to the managed auth provider.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/KripanshSrivastava/CivicVoice-report/api/kss"
	"github.com/KripanshSrivastava/CivicVoice-report/authn"
	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core"
	"github.com/KripanshSrivastava/CivicVoice-report/core/csql"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// API is the CivicVoice rest backend
type API struct {
	store         Store
	router        *mux.Router
	authn         authn.Client
	jwtSecret     []byte
	kss           kss.Driver
	notifier      core.Notifier
	identityCache *identityCache
}

// Builder is a builder helper for the API
type Builder struct {
	// DB is a postgres database. Either DB or Store is mandatory.
	DB *csql.DB
	// Store overrides the postgres store, used in tests. Optional.
	Store Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Authn is the auth provider client. This is mandatory.
	Authn authn.Client
	// JWTSecret enables local verification of the provider's HS256
	// access tokens. If empty, tokens are verified with a provider
	// round trip instead. Optional.
	JWTSecret string
	// Kss is the image storage driver. Optional; without it the
	// image upload route is disabled.
	Kss kss.Driver
	// Notifier receives a notification for every mutation. Optional.
	Notifier core.Notifier
}

// New realizes the actual API. It creates the sql tables (if they do
// not exist) and adds the routes to the router.
func New(b *Builder) *API {
	if b.Router == nil {
		panic("Router is missing")
	}
	store := b.Store
	if store == nil {
		if b.DB == nil {
			panic("DB is missing")
		}
		store = NewPostgresStore(b.DB)
	}

	a := &API{
		store:         store,
		router:        b.Router,
		authn:         b.Authn,
		jwtSecret:     []byte(b.JWTSecret),
		kss:           b.Kss,
		notifier:      b.Notifier,
		identityCache: newIdentityCache(),
	}
	a.handleCORS()
	a.router.Use(a.authMiddleware())
	a.handleRoutes()
	return a
}

func (a *API) handleRoutes() {
	logger.Default().Debugln("api routes enabled")

	router := a.router.PathPrefix("/api").Subrouter()

	router.HandleFunc("/health", a.health).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/auth/register", a.register).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/login", a.login).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/refresh", a.refresh).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/logout", a.logout).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/resend-confirmation", a.resendConfirmation).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/reset-password", a.resetPassword).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/auth/me", a.authorized(a.me)).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/issues", a.listIssues).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/issues", a.authorized(a.createIssue)).Methods(http.MethodPost)
	// literal route before the {issue_id} routes, mux matches in order
	if a.kss != nil {
		router.HandleFunc("/issues/image-upload", a.authorized(a.imageUploadURL)).Methods(http.MethodOptions, http.MethodGet)
	}
	router.HandleFunc("/issues/{issue_id}", a.getIssue).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/issues/{issue_id}", a.authorized(a.updateIssue)).Methods(http.MethodPatch, http.MethodPut)
	router.HandleFunc("/issues/{issue_id}", a.authorized(a.deleteIssue)).Methods(http.MethodDelete)
	router.HandleFunc("/issues/{issue_id}/upvote", a.authorized(a.toggleUpvote)).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/issues/{issue_id}/comments", a.listComments).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/issues/{issue_id}/comments", a.authorized(a.createComment)).Methods(http.MethodPost)

	router.HandleFunc("/users/profile", a.authorized(a.getProfile)).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/users/profile", a.authorized(a.putProfile)).Methods(http.MethodPut)
	router.HandleFunc("/users/issues", a.authorized(a.userIssues)).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/users/upvoted", a.authorized(a.userUpvoted)).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/users/stats", a.authorized(a.userStats)).Methods(http.MethodOptions, http.MethodGet)
}

// notify reports a mutation to the notifier, if one is configured.
func (a *API) notify(resource string, operation core.Operation, payload []byte) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(resource, operation, payload)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeError(w, civic.ErrorFromStatus(http.StatusInternalServerError, "database unavailable"))
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}
