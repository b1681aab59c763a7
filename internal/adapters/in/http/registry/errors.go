package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/adapters/dto"
	"github.com/artipie/stevedore/internal/domain"
	usecase "github.com/artipie/stevedore/internal/usecase/registry"
)

// Error codes from the Registry API v2 error taxonomy.
const (
	codeBlobUnknown       = "BLOB_UNKNOWN"
	codeBlobUploadInvalid = "BLOB_UPLOAD_INVALID"
	codeBlobUploadUnknown = "BLOB_UPLOAD_UNKNOWN"
	codeDenied            = "DENIED"
	codeDigestInvalid     = "DIGEST_INVALID"
	codeManifestInvalid   = "MANIFEST_INVALID"
	codeManifestUnknown   = "MANIFEST_UNKNOWN"
	codeNameInvalid       = "NAME_INVALID"
	codeNotFound          = "NOT_FOUND"
	codeTagInvalid        = "TAG_INVALID"
	codeUnauthorized      = "UNAUTHORIZED"
	codeUnknown           = "UNKNOWN"
	codeUnsupported       = "UNSUPPORTED"
)

// writeError sends the registry error envelope. Every failing response
// on the API surface goes through here so clients always see the same
// shape.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := dto.RegistryErrorResponse{
		Errors: []dto.RegistryErrorItem{{Code: code, Message: message}},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode registry error response")
	}
}

// writeServiceError translates service-layer errors into their wire
// representation. Unrecognized errors become an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var mismatch *usecase.DigestMismatchError
	switch {
	case errors.Is(err, usecase.ErrBlobUnknown):
		writeError(w, http.StatusNotFound, codeBlobUnknown, "blob unknown to registry")
	case errors.Is(err, usecase.ErrManifestUnknown):
		writeError(w, http.StatusNotFound, codeManifestUnknown, "manifest unknown to registry")
	case errors.Is(err, usecase.ErrUploadUnknown):
		writeError(w, http.StatusNotFound, codeBlobUploadUnknown, "blob upload unknown to registry")
	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, codeDigestInvalid,
			fmt.Sprintf("provided digest did not match uploaded content: expected %s, got %s",
				mismatch.Expected, mismatch.Actual))
	case errors.Is(err, usecase.ErrDigestInvalid):
		writeError(w, http.StatusBadRequest, codeDigestInvalid, "provided digest is invalid")
	case errors.Is(err, usecase.ErrNameInvalid):
		writeError(w, http.StatusBadRequest, codeNameInvalid, "invalid repository name")
	case errors.Is(err, usecase.ErrTagInvalid), errors.Is(err, domain.ErrReferenceInvalid):
		writeError(w, http.StatusBadRequest, codeTagInvalid, "manifest tag did not match expected format")
	case errors.Is(err, usecase.ErrManifestInvalid):
		writeError(w, http.StatusBadRequest, codeManifestInvalid, "manifest invalid")
	default:
		log.Error().Err(err).Msg("Unhandled registry service error")
		writeError(w, http.StatusInternalServerError, codeUnknown, "internal server error")
	}
}

// writeUnauthorized challenges the client for credentials. The API
// version header accompanies the challenge so clients recognize the
// endpoint as a v2 registry.
func (h *Handler) writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", h.realm))
	w.Header().Set(apiVersionHeader, apiVersionValue)
	writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
}
