// Package httpapi is the HTTP surface of the access-control backend: routing,
// authentication middleware and JSON encoding. All business rules live in the
// component services; handlers translate between the wire and those services.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"seguridad.dev/internal/audit"
	"seguridad.dev/internal/credential"
	"seguridad.dev/internal/grant"
	"seguridad.dev/internal/membership"
	"seguridad.dev/internal/obs"
	"seguridad.dev/internal/session"
)

const roleAdmin = "admin"

// ReadyProbe reports whether the process can serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the knobs the HTTP layer needs from main.
type Config struct {
	CORSOrigin string
	RateRPS    int
	RateBurst  int
	Version    string
}

// API wires the component services to routes.
type API struct {
	router      *mux.Router
	users       *credential.Service
	grants      *grant.Service
	memberships *membership.Engine
	sessions    *session.Service
	audits      *audit.Service
	readyProbe  ReadyProbe
	cfg         Config
}

// New constructs the API and registers every route.
func New(
	users *credential.Service,
	grants *grant.Service,
	memberships *membership.Engine,
	sessions *session.Service,
	audits *audit.Service,
	rp ReadyProbe,
	cfg Config,
) *API {
	a := &API{
		router:      mux.NewRouter(),
		users:       users,
		grants:      grants,
		memberships: memberships,
		sessions:    sessions,
		audits:      audits,
		readyProbe:  rp,
		cfg:         cfg,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", a.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/auth/refresh", a.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/users", a.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", a.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id:[0-9]+}", a.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id:[0-9]+}", a.handleUpdateUser).Methods(http.MethodPut)
	r.HandleFunc("/users/{id:[0-9]+}", a.handleDeactivateUser).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id:[0-9]+}/password", a.handleSetPassword).Methods(http.MethodPut)

	r.HandleFunc("/roles", a.handleListRoles).Methods(http.MethodGet)
	r.HandleFunc("/roles", a.handleCreateRole).Methods(http.MethodPost)
	r.HandleFunc("/roles/{id:[0-9]+}", a.handleGetRole).Methods(http.MethodGet)
	r.HandleFunc("/roles/{id:[0-9]+}", a.handleUpdateRole).Methods(http.MethodPut)
	r.HandleFunc("/roles/{id:[0-9]+}", a.handleDeleteRole).Methods(http.MethodDelete)
	r.HandleFunc("/roles/{id:[0-9]+}/subs", a.handleListGrants).Methods(http.MethodGet)
	r.HandleFunc("/roles/{id:[0-9]+}/subs", a.handleAddGrant).Methods(http.MethodPost)
	r.HandleFunc("/roles/{id:[0-9]+}/subs/{actionId:[0-9]+}", a.handleRemoveGrant).Methods(http.MethodDelete)

	r.HandleFunc("/actions", a.handleListActions).Methods(http.MethodGet)
	r.HandleFunc("/actions", a.handleCreateAction).Methods(http.MethodPost)
	r.HandleFunc("/actions/membership/{id:[0-9]+}", a.handleMembershipActions).Methods(http.MethodGet)
	r.HandleFunc("/actions/membership/{id:[0-9]+}", a.handleBindAction).Methods(http.MethodPost)
	r.HandleFunc("/actions/membership/{id:[0-9]+}/{actionId:[0-9]+}", a.handleUnbindAction).Methods(http.MethodDelete)
	r.HandleFunc("/actions/{id:[0-9]+}", a.handleGetAction).Methods(http.MethodGet)
	r.HandleFunc("/actions/{id:[0-9]+}", a.handleUpdateAction).Methods(http.MethodPut)
	r.HandleFunc("/actions/{id:[0-9]+}", a.handleDeleteAction).Methods(http.MethodDelete)

	r.HandleFunc("/owners", a.handleListOwners).Methods(http.MethodGet)
	r.HandleFunc("/owners", a.handleCreateOwner).Methods(http.MethodPost)
	r.HandleFunc("/owners/search", a.handleSearchOwners).Methods(http.MethodGet)
	r.HandleFunc("/owners/{id:[0-9]+}", a.handleGetOwner).Methods(http.MethodGet)
	r.HandleFunc("/owners/{id:[0-9]+}", a.handleUpdateOwner).Methods(http.MethodPut)
	r.HandleFunc("/owners/{id:[0-9]+}", a.handleDeactivateOwner).Methods(http.MethodDelete)

	r.HandleFunc("/memberships", a.handleListMemberships).Methods(http.MethodGet)
	r.HandleFunc("/memberships", a.handleCreateMembership).Methods(http.MethodPost)
	r.HandleFunc("/memberships/active", a.handleListActiveMemberships).Methods(http.MethodGet)
	r.HandleFunc("/memberships/{id:[0-9]+}", a.handleGetMembership).Methods(http.MethodGet)
	r.HandleFunc("/memberships/{id:[0-9]+}", a.handleUpdateMembership).Methods(http.MethodPut)
	r.HandleFunc("/memberships/{id:[0-9]+}", a.handleDecommissionMembership).Methods(http.MethodDelete)
	r.HandleFunc("/memberships/{id:[0-9]+}/roles", a.handleMembershipRoles).Methods(http.MethodGet)
	r.HandleFunc("/memberships/{id:[0-9]+}/roles", a.handleBindRole).Methods(http.MethodPost)
	r.HandleFunc("/memberships/{id:[0-9]+}/roles/{roleId:[0-9]+}", a.handleUnbindRole).Methods(http.MethodDelete)
	r.HandleFunc("/memberships/{id:[0-9]+}/permissions", a.handleEffectivePermissions).Methods(http.MethodGet)
	r.HandleFunc("/memberships/{id:[0-9]+}/owner", a.handleOwnerByMembership).Methods(http.MethodGet)

	r.HandleFunc("/tokens", a.handleListTokens).Methods(http.MethodGet)
	r.HandleFunc("/tokens", a.handleIssueToken).Methods(http.MethodPost)
	r.HandleFunc("/tokens/expired", a.handleSweepTokens).Methods(http.MethodDelete)
	r.HandleFunc("/tokens/validate/{value}", a.handleValidateToken).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{id:[0-9]+}", a.handleGetToken).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{id:[0-9]+}/validated", a.handleMarkTokenValidated).Methods(http.MethodPut)
	r.HandleFunc("/tokens/{id:[0-9]+}", a.handleDeleteToken).Methods(http.MethodDelete)

	r.HandleFunc("/audits", a.handleListAudits).Methods(http.MethodGet)
	r.HandleFunc("/audits", a.handleAppendAudit).Methods(http.MethodPost)
	r.HandleFunc("/audits/search", a.handleSearchAudits).Methods(http.MethodGet)
	r.HandleFunc("/audits/date-range", a.handleAuditsByDateRange).Methods(http.MethodGet)
	r.HandleFunc("/audits/{id:[0-9]+}", a.handleGetAudit).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the fully wrapped handler chain. Order matters: the request
// id must exist before logging, and authentication runs last so rejected
// requests are still logged and counted.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.router)
	if a.cfg.RateRPS > 0 {
		h = RateLimit(h, a.cfg.RateRPS, a.cfg.RateBurst)
	}
	h = CORS(h, a.cfg.CORSOrigin)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "seguridad-api",
		"version": a.cfg.Version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
