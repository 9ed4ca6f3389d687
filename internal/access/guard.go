package access

import (
	"errors"

	"tasktree/api/internal/model"
)

var (
	// ErrForbidden means the caller is authenticated but does not own the
	// resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated means no verified identity is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Owned is a resource bound to the identity that created it.
type Owned interface {
	OwnerID() string
}

// AssertOwner fails with ErrForbidden unless identity created resource.
func AssertOwner(identity model.Identity, resource Owned) error {
	if identity.ID == "" || resource.OwnerID() != identity.ID {
		return ErrForbidden
	}
	return nil
}
