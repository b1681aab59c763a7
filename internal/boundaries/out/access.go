package out

import (
	"errors"
	"net/http"

	"github.com/artipie/stevedore/internal/domain"
)

// ErrInvalidCredentials indicates missing or wrong request credentials.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator derives a caller identity from request credentials.
// Implementations are pluggable; the registry core only consumes the
// identity-or-failure contract.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

// Policy decides whether an identity holds a required scope.
type Policy interface {
	Allowed(identity domain.Identity, scope domain.Scope) bool
}
