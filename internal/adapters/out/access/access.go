// Package access provides request authentication and authorization
// implementations for the registry. Both sides are pluggable; the ones
// here cover the common single-binary deployment: no auth at all, or a
// static set of basic-auth users with per-user action grants.
package access

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/boundaries/out"
	"github.com/artipie/stevedore/internal/config"
	"github.com/artipie/stevedore/internal/domain"
)

// Anonymous authenticates every request as the anonymous identity.
type Anonymous struct{}

func (Anonymous) Authenticate(_ *http.Request) (domain.Identity, error) {
	return domain.AnonymousIdentity, nil
}

// AllowAll grants every scope. Used when authentication is disabled.
type AllowAll struct{}

func (AllowAll) Allowed(_ domain.Identity, _ domain.Scope) bool {
	return true
}

// BasicAuth authenticates requests against a static user table using
// HTTP basic auth with constant-time comparison.
type BasicAuth struct {
	users map[string]config.UserConfig
}

var _ out.Authenticator = (*BasicAuth)(nil)

func NewBasicAuth(users map[string]config.UserConfig) *BasicAuth {
	return &BasicAuth{users: users}
}

func (a *BasicAuth) Authenticate(r *http.Request) (domain.Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return domain.Identity{}, out.ErrInvalidCredentials
	}

	user, found := a.users[username]
	// Compare even for unknown users to keep timing uniform.
	expected := user.Password
	match := subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1
	if !found || !match {
		log.Warn().
			Str("username", username).
			Str("remote_addr", r.RemoteAddr).
			Msg("Authentication failed")
		return domain.Identity{}, out.ErrInvalidCredentials
	}

	return domain.Identity{Name: username}, nil
}

// StaticPolicy authorizes scopes from the per-user action grants of the
// same user table. The "*" grant covers every action.
type StaticPolicy struct {
	users map[string]config.UserConfig
}

var _ out.Policy = (*StaticPolicy)(nil)

func NewStaticPolicy(users map[string]config.UserConfig) *StaticPolicy {
	return &StaticPolicy{users: users}
}

func (p *StaticPolicy) Allowed(identity domain.Identity, scope domain.Scope) bool {
	if identity.Anonymous {
		return false
	}
	user, ok := p.users[identity.Name]
	if !ok {
		return false
	}
	for _, action := range user.Actions {
		if action == "*" || action == string(scope.Action) {
			return true
		}
	}
	return false
}
