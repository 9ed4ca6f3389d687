// Package access decides, per request, which backend credentials to use and
// whether the caller may touch a resource.
package access

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
	"tasktree/api/internal/model"
	"tasktree/api/internal/session"
)

// RequestContext is resolved once per request and passed by value to the
// service layer.
type RequestContext struct {
	Identity     *model.Identity
	Credentials  backend.Credentials
	SessionToken string
	Record       *session.Record
}

func (rc RequestContext) Authenticated() bool {
	return rc.Identity != nil
}

// RequireIdentity returns the verified identity or ErrUnauthenticated.
func (rc RequestContext) RequireIdentity() (model.Identity, error) {
	if rc.Identity == nil || rc.Identity.ID == "" {
		return model.Identity{}, ErrUnauthenticated
	}
	return *rc.Identity, nil
}

type Resolver struct {
	cfg         config.BackendConfig
	sessions    session.Store
	backend     backend.Backend
	localCookie string
}

func NewResolver(cfg config.BackendConfig, sessions session.Store, b backend.Backend, localCookie string) *Resolver {
	return &Resolver{cfg: cfg, sessions: sessions, backend: b, localCookie: localCookie}
}

// BackendCookieName is the cookie carrying a forwarded backend session.
func (r *Resolver) BackendCookieName() string {
	return r.cfg.SessionCookieName()
}

// LocalCookieName is the cookie carrying the Session Store token.
func (r *Resolver) LocalCookieName() string {
	return r.localCookie
}

func (r *Resolver) Sessions() session.Store {
	return r.sessions
}

// Resolve never fails. A forwarded backend session wins; otherwise a local
// session bridges through the service key; otherwise the request is
// anonymous. Session store failures degrade to anonymous.
func (r *Resolver) Resolve(req *http.Request) RequestContext {
	rc := RequestContext{}

	if token := cookieValue(req, r.localCookie); token != "" {
		rc.SessionToken = token
		record, err := r.sessions.Get(req.Context(), token)
		switch {
		case err == nil:
			identity := record.User
			rc.Identity = &identity
			rc.Record = &record
		case errors.Is(err, session.ErrNotFound):
		default:
			log.Printf("access: session lookup failed: %v", err)
		}
	}

	if token := cookieValue(req, r.BackendCookieName()); token != "" {
		rc.Credentials = backend.Session(token)
		return rc
	}
	if rc.Identity != nil {
		rc.Credentials = backend.Bridged(*rc.Identity)
	}
	return rc
}

// Client returns a backend client for creds. Configuration is checked before
// any network call.
func (r *Resolver) Client(creds backend.Credentials) (*backend.Client, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if creds.Kind() == backend.KindNone {
		return nil, ErrUnauthenticated
	}
	return r.backend.Client(creds)
}

// Admin returns the unscoped service client used by login and registration.
func (r *Resolver) Admin() (*backend.Client, error) {
	return r.Client(backend.Admin())
}

// Ping checks the backend with service credentials and the session store.
func (r *Resolver) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{"session": r.sessions.Ping(ctx)}
	if err := r.cfg.Validate(); err != nil {
		checks["backend"] = err
	} else {
		checks["backend"] = r.backend.Ping(ctx)
	}
	return checks
}

func cookieValue(req *http.Request, name string) string {
	if name == "" {
		return ""
	}
	cookie, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
