package backend

import "tasktree/api/internal/model"

// Kind names how a client authenticates against the backend.
type Kind int

const (
	KindNone Kind = iota
	// KindAdmin uses the service API key and is unscoped.
	KindAdmin
	// KindSession forwards the caller's backend session secret; the backend
	// enforces document and file permissions.
	KindSession
	// KindBridged uses the service API key on behalf of a locally
	// authenticated identity. Scoping is the caller's job.
	KindBridged
)

func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindSession:
		return "session"
	case KindBridged:
		return "bridged"
	default:
		return "none"
	}
}

// Credentials is resolved once per request and selects the client variant.
type Credentials struct {
	kind     Kind
	token    string
	identity model.Identity
}

func Admin() Credentials {
	return Credentials{kind: KindAdmin}
}

func Session(token string) Credentials {
	return Credentials{kind: KindSession, token: token}
}

func Bridged(identity model.Identity) Credentials {
	return Credentials{kind: KindBridged, identity: identity}
}

func (c Credentials) Kind() Kind {
	return c.kind
}

// Token is the forwarded session secret for KindSession.
func (c Credentials) Token() string {
	return c.token
}

// Identity is the bridged identity for KindBridged.
func (c Credentials) Identity() (model.Identity, bool) {
	return c.identity, c.kind == KindBridged
}

// UsesAPIKey reports whether the client authenticates with the service key.
func (c Credentials) UsesAPIKey() bool {
	return c.kind == KindAdmin || c.kind == KindBridged
}
