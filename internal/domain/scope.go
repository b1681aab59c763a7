package domain

import "fmt"

// Action is a capability required to perform a registry operation.
type Action string

const (
	// ActionPull allows reading blobs, manifests and tags of a repository.
	ActionPull Action = "pull"
	// ActionPush allows writing blobs and manifests to a repository.
	ActionPush Action = "push"
	// ActionOverwriteTag allows re-pointing an existing tag to a new manifest.
	ActionOverwriteTag Action = "overwrite-tag"
	// ActionBase allows the API version probe.
	ActionBase Action = "base"
	// ActionCatalog allows listing all repositories of the registry.
	ActionCatalog Action = "catalog"
)

// ScopeType distinguishes repository-scoped from registry-wide capabilities.
type ScopeType string

const (
	ScopeRepository ScopeType = "repository"
	ScopeRegistry   ScopeType = "registry"
)

// Scope is the (resource-type, resource-name, action) triple used to
// authorize a request. It is computed per request and never persisted.
type Scope struct {
	Type   ScopeType
	Name   string
	Action Action
}

// RepositoryScope builds a repository-scoped capability.
func RepositoryScope(name string, action Action) Scope {
	return Scope{Type: ScopeRepository, Name: name, Action: action}
}

// RegistryScope builds a registry-wide capability. The resource name for
// registry scopes is always "*".
func RegistryScope(action Action) Scope {
	return Scope{Type: ScopeRegistry, Name: "*", Action: action}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s:%s", s.Type, s.Name, s.Action)
}

// Identity is the caller identity derived from request credentials.
type Identity struct {
	Name      string
	Anonymous bool
}

// AnonymousIdentity is the identity of unauthenticated callers when
// authentication is disabled.
var AnonymousIdentity = Identity{Name: "anonymous", Anonymous: true}
