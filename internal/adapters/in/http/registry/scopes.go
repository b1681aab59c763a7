package registry

import (
	"net/http"

	"github.com/artipie/stevedore/internal/domain"
)

func scopeBase(h *Handler, r *http.Request, m []string) ([]domain.Scope, error) {
	return []domain.Scope{domain.RegistryScope(domain.ActionBase)}, nil
}

func scopeCatalog(h *Handler, r *http.Request, m []string) ([]domain.Scope, error) {
	return []domain.Scope{domain.RegistryScope(domain.ActionCatalog)}, nil
}

func scopePull(h *Handler, r *http.Request, m []string) ([]domain.Scope, error) {
	return []domain.Scope{domain.RepositoryScope(m[1], domain.ActionPull)}, nil
}

func scopePush(h *Handler, r *http.Request, m []string) ([]domain.Scope, error) {
	return []domain.Scope{domain.RepositoryScope(m[1], domain.ActionPush)}, nil
}

// scopeManifestPut narrows the required capability when a push would
// replace an existing tag. A tag that already resolves demands the
// overwrite action specifically; pushing a new tag (or by digest) is
// satisfied by either push or overwrite.
func scopeManifestPut(h *Handler, r *http.Request, m []string) ([]domain.Scope, error) {
	name := m[1]
	ref, err := domain.ParseReference(m[2])
	if err != nil {
		// Let the handler produce the reference error after authz
		// passes; an invalid reference cannot overwrite anything.
		return []domain.Scope{
			domain.RepositoryScope(name, domain.ActionPush),
			domain.RepositoryScope(name, domain.ActionOverwriteTag),
		}, nil
	}
	if !ref.IsDigest() {
		exists, err := h.svc.ManifestExists(r.Context(), name, ref)
		if err != nil {
			return nil, err
		}
		if exists {
			return []domain.Scope{
				domain.RepositoryScope(name, domain.ActionOverwriteTag),
			}, nil
		}
	}
	return []domain.Scope{
		domain.RepositoryScope(name, domain.ActionPush),
		domain.RepositoryScope(name, domain.ActionOverwriteTag),
	}, nil
}
