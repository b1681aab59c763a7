// Package registry implements the HTTP adapter for the Docker Registry
// API v2. Routing is a data-driven ordered table of (method, path
// pattern, scope computation, handler) entries; every matched entry runs
// through authentication and scope authorization before its handler.
package registry

import (
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/boundaries/in"
	"github.com/artipie/stevedore/internal/boundaries/out"
	"github.com/artipie/stevedore/internal/domain"
)

const (
	// MaxManifestSize limits manifest uploads to 10MB.
	MaxManifestSize = 10 * 1024 * 1024
	// MaxBlobChunkSize limits individual blob chunks to 100MB.
	MaxBlobChunkSize = 100 * 1024 * 1024

	apiVersionHeader = "Docker-Distribution-API-Version"
	apiVersionValue  = "registry/2.0"

	contentDigestHeader = "Docker-Content-Digest"
	uploadUUIDHeader    = "Docker-Upload-UUID"
)

// Path patterns for the v2 API. More specific patterns (uploads) come
// before the generic blob pattern in the route table.
var (
	basePattern     = regexp.MustCompile(`^/v2/$`)
	catalogPattern  = regexp.MustCompile(`^/v2/_catalog$`)
	manifestPattern = regexp.MustCompile(`^/v2/(.+)/manifests/([^/]+)$`)
	tagsPattern     = regexp.MustCompile(`^/v2/(.+)/tags/list$`)
	uploadPattern   = regexp.MustCompile(`^/v2/(.+)/blobs/uploads/([^/]*)$`)
	blobPattern     = regexp.MustCompile(`^/v2/(.+)/blobs/([^/]+)$`)
)

// scopeFunc computes the capabilities that permit a matched request.
// Holding any one of the returned scopes is sufficient. Computation may
// consult the store (the manifest push overwrite rule does).
type scopeFunc func(h *Handler, r *http.Request, m []string) ([]domain.Scope, error)

// handlerFunc executes the matched request. m holds the pattern's
// submatches (m[0] is the full path).
type handlerFunc func(h *Handler, w http.ResponseWriter, r *http.Request, m []string)

type route struct {
	method  string
	pattern *regexp.Regexp
	scopes  scopeFunc
	handle  handlerFunc
}

// Handler serves the registry API. The authenticator and policy are
// pluggable collaborators; the handler only consumes their contracts.
type Handler struct {
	svc    in.RegistryService
	authn  out.Authenticator
	authz  out.Policy
	realm  string
	routes []route
}

// NewHandler builds the route table. Order matters only in that upload
// paths must be tried before the generic blob pattern.
func NewHandler(svc in.RegistryService, authn out.Authenticator, authz out.Policy, realm string) *Handler {
	h := &Handler{
		svc:   svc,
		authn: authn,
		authz: authz,
		realm: realm,
	}
	h.routes = []route{
		{http.MethodGet, basePattern, scopeBase, (*Handler).handleBase},
		{http.MethodGet, catalogPattern, scopeCatalog, (*Handler).handleCatalog},
		{http.MethodHead, manifestPattern, scopePull, (*Handler).handleManifestHead},
		{http.MethodGet, manifestPattern, scopePull, (*Handler).handleManifestGet},
		{http.MethodPut, manifestPattern, scopeManifestPut, (*Handler).handleManifestPut},
		{http.MethodGet, tagsPattern, scopePull, (*Handler).handleTagsList},
		{http.MethodPost, uploadPattern, scopePush, (*Handler).handleUploadStart},
		{http.MethodPatch, uploadPattern, scopePush, (*Handler).handleUploadAppend},
		{http.MethodPut, uploadPattern, scopePush, (*Handler).handleUploadComplete},
		{http.MethodGet, uploadPattern, scopePull, (*Handler).handleUploadStatus},
		{http.MethodDelete, uploadPattern, scopePull, (*Handler).handleUploadCancel},
		{http.MethodHead, blobPattern, scopePull, (*Handler).handleBlobHead},
		{http.MethodGet, blobPattern, scopePull, (*Handler).handleBlobGet},
	}
	return h
}

// ServeHTTP dispatches through the route table. A path that matches some
// entry but no method yields 405; an unmatched path yields 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pathKnown := false
	for i := range h.routes {
		rt := &h.routes[i]
		m := rt.pattern.FindStringSubmatch(r.URL.Path)
		if m == nil {
			continue
		}
		pathKnown = true
		if r.Method != rt.method {
			continue
		}
		h.dispatch(w, r, rt, m)
		return
	}

	if pathKnown {
		writeError(w, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}
	writeError(w, http.StatusNotFound, codeNotFound, "route not found")
}

// dispatch runs the authentication, scope computation and authorization
// steps, then the entity handler. The scope may depend on store state, so
// it is computed per request; nothing is written before authorization
// succeeds.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, rt *route, m []string) {
	identity, err := h.authn.Authenticate(r)
	if err != nil {
		h.writeUnauthorized(w)
		return
	}

	scopes, err := rt.scopes(h, r, m)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	allowed := false
	for _, scope := range scopes {
		if h.authz.Allowed(identity, scope) {
			allowed = true
			break
		}
	}
	if !allowed {
		log.Warn().
			Str("identity", identity.Name).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Authorization denied")
		if identity.Anonymous {
			h.writeUnauthorized(w)
			return
		}
		writeError(w, http.StatusForbidden, codeDenied, "requested access to the resource is denied")
		return
	}

	rt.handle(h, w, r, m)
}
