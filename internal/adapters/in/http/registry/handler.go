package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/adapters/dto"
	"github.com/artipie/stevedore/internal/domain"
	usecase "github.com/artipie/stevedore/internal/usecase/registry"
	"github.com/artipie/stevedore/pkg/validation"
)

// handleBase answers the version check probe. Reaching this point means
// authorization already passed, so the response is always 200.
func (h *Handler) handleBase(w http.ResponseWriter, r *http.Request, m []string) {
	w.Header().Set(apiVersionHeader, apiVersionValue)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("{}")); err != nil {
		log.Error().Err(err).Msg("Failed to write base response")
	}
}

func (h *Handler) handleManifestHead(w http.ResponseWriter, r *http.Request, m []string) {
	h.serveManifest(w, r, m, false)
}

func (h *Handler) handleManifestGet(w http.ResponseWriter, r *http.Request, m []string) {
	h.serveManifest(w, r, m, true)
}

// serveManifest handles GET and HEAD on a manifest reference. HEAD
// carries the same headers as GET with no body.
func (h *Handler) serveManifest(w http.ResponseWriter, r *http.Request, m []string, withBody bool) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return
	}
	ref, err := domain.ParseReference(m[2])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	manifest, err := h.svc.GetManifest(r.Context(), name, ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", manifest.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(manifest.Size, 10))
	w.Header().Set(contentDigestHeader, manifest.Digest.String())
	w.WriteHeader(http.StatusOK)
	if !withBody {
		return
	}
	if _, err := w.Write(manifest.Data); err != nil {
		log.Error().Err(err).Str("repo", name).Msg("Failed to write manifest response")
	}
}

// handleManifestPut stores a manifest under a tag or digest reference.
func (h *Handler) handleManifestPut(w http.ResponseWriter, r *http.Request, m []string) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return
	}
	ref, err := domain.ParseReference(m[2])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxManifestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeManifestInvalid, "failed to read manifest body")
		return
	}
	if len(body) > MaxManifestSize {
		writeError(w, http.StatusBadRequest, codeManifestInvalid, "manifest exceeds size limit")
		return
	}

	manifest, err := h.svc.PutManifest(r.Context(), name, ref, r.Header.Get("Content-Type"), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/manifests/%s", name, ref.String()))
	w.Header().Set("Content-Length", "0")
	w.Header().Set(contentDigestHeader, manifest.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

// handleTagsList returns the repository's tags, optionally windowed by
// the last and n query parameters.
func (h *Handler) handleTagsList(w http.ResponseWriter, r *http.Request, m []string) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return
	}
	last, n, ok := paginationParams(w, r)
	if !ok {
		return
	}

	tags, err := h.svc.Tags(r.Context(), name, last, n)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TagListResponse{Name: name, Tags: tags})
}

func (h *Handler) handleBlobHead(w http.ResponseWriter, r *http.Request, m []string) {
	name, dgst, ok := h.blobParams(w, m)
	if !ok {
		return
	}

	blob, err := h.svc.StatBlob(r.Context(), name, dgst)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	w.Header().Set(contentDigestHeader, blob.Digest.String())
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBlobGet(w http.ResponseWriter, r *http.Request, m []string) {
	name, dgst, ok := h.blobParams(w, m)
	if !ok {
		return
	}

	rc, blob, err := h.svc.GetBlob(r.Context(), name, dgst)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.Error().Err(err).Str("repo", name).Msg("Failed to close blob reader")
		}
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	w.Header().Set(contentDigestHeader, blob.Digest.String())
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Error().Err(err).Str("repo", name).Str("digest", dgst.String()).
			Msg("Failed to stream blob response")
	}
}

// handleUploadStart opens a new upload session, or mounts an existing
// blob from another repository when mount and from parameters are given.
// A mount whose source blob is missing silently degrades to a regular
// session so the client can push the bytes.
func (h *Handler) handleUploadStart(w http.ResponseWriter, r *http.Request, m []string) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return
	}
	if m[2] != "" {
		writeError(w, http.StatusMethodNotAllowed, codeUnsupported, "method not allowed")
		return
	}

	mount := r.URL.Query().Get("mount")
	from := r.URL.Query().Get("from")
	if mount != "" && from != "" {
		dgst, err := digest.Parse(mount)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeDigestInvalid, "provided digest is invalid")
			return
		}
		if err := validation.ValidateRepositoryName(from); err != nil {
			writeError(w, http.StatusBadRequest, codeNameInvalid, "invalid repository name")
			return
		}
		blob, err := h.svc.MountBlob(r.Context(), from, name, dgst)
		if err == nil {
			h.writeBlobCreated(w, name, blob.Digest)
			return
		}
		if !isBlobUnknown(err) {
			writeServiceError(w, err)
			return
		}
		// Source blob absent: fall through to a fresh session.
	}

	upload, err := h.svc.StartUpload(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", uploadLocation(name, upload.UUID))
	w.Header().Set("Range", rangeHeader(upload.Offset))
	w.Header().Set("Content-Length", "0")
	w.Header().Set(uploadUUIDHeader, upload.UUID)
	w.WriteHeader(http.StatusAccepted)
}

// handleUploadAppend appends the request body to the session and reports
// the new committed range.
func (h *Handler) handleUploadAppend(w http.ResponseWriter, r *http.Request, m []string) {
	name, uuid, ok := h.uploadParams(w, m)
	if !ok {
		return
	}

	chunk, ok := h.readChunk(w, r)
	if !ok {
		return
	}

	upload, err := h.svc.AppendUpload(r.Context(), name, uuid, chunk)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", uploadLocation(name, uuid))
	w.Header().Set("Range", rangeHeader(upload.Offset))
	w.Header().Set("Content-Length", "0")
	w.Header().Set(uploadUUIDHeader, uuid)
	w.WriteHeader(http.StatusAccepted)
}

// handleUploadComplete finalizes the session against the digest query
// parameter. A body, when present, is appended first so monolithic
// single-request uploads work too.
func (h *Handler) handleUploadComplete(w http.ResponseWriter, r *http.Request, m []string) {
	name, uuid, ok := h.uploadParams(w, m)
	if !ok {
		return
	}

	rawDigest := r.URL.Query().Get("digest")
	if rawDigest == "" {
		writeError(w, http.StatusBadRequest, codeDigestInvalid, "digest parameter is required")
		return
	}
	dgst, err := digest.Parse(rawDigest)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeDigestInvalid, "provided digest is invalid")
		return
	}

	chunk, ok := h.readChunk(w, r)
	if !ok {
		return
	}
	if len(chunk) > 0 {
		if _, err := h.svc.AppendUpload(r.Context(), name, uuid, chunk); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	blob, err := h.svc.CompleteUpload(r.Context(), name, uuid, dgst)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeBlobCreated(w, name, blob.Digest)
}

// handleUploadStatus reports the current committed range of a session.
func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request, m []string) {
	name, uuid, ok := h.uploadParams(w, m)
	if !ok {
		return
	}

	upload, err := h.svc.UploadOffset(r.Context(), name, uuid)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Range", rangeHeader(upload.Offset))
	w.Header().Set("Content-Length", "0")
	w.Header().Set(uploadUUIDHeader, uuid)
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadCancel discards the session and any bytes it held.
func (h *Handler) handleUploadCancel(w http.ResponseWriter, r *http.Request, m []string) {
	name, uuid, ok := h.uploadParams(w, m)
	if !ok {
		return
	}

	if err := h.svc.CancelUpload(r.Context(), name, uuid); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set(uploadUUIDHeader, uuid)
	w.WriteHeader(http.StatusOK)
}

// handleCatalog lists repositories across the registry.
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request, m []string) {
	last, n, ok := paginationParams(w, r)
	if !ok {
		return
	}

	repos, err := h.svc.Catalog(r.Context(), last, n)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CatalogResponse{Repositories: repos})
}

// --- shared helpers ---

func (h *Handler) repositoryName(w http.ResponseWriter, m []string) (string, bool) {
	name := m[1]
	if err := validation.ValidateRepositoryName(name); err != nil {
		writeError(w, http.StatusBadRequest, codeNameInvalid, "invalid repository name")
		return "", false
	}
	return name, true
}

func (h *Handler) blobParams(w http.ResponseWriter, m []string) (string, digest.Digest, bool) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return "", "", false
	}
	dgst, err := digest.Parse(m[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, codeDigestInvalid, "provided digest is invalid")
		return "", "", false
	}
	return name, dgst, true
}

func (h *Handler) uploadParams(w http.ResponseWriter, m []string) (string, string, bool) {
	name, ok := h.repositoryName(w, m)
	if !ok {
		return "", "", false
	}
	uuid := m[2]
	if err := validation.ValidateUUID(uuid); err != nil {
		writeError(w, http.StatusBadRequest, codeBlobUploadInvalid, "invalid upload session identifier")
		return "", "", false
	}
	return name, uuid, true
}

func (h *Handler) readChunk(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	chunk, err := io.ReadAll(io.LimitReader(r.Body, MaxBlobChunkSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBlobUploadInvalid, "failed to read upload body")
		return nil, false
	}
	if len(chunk) > MaxBlobChunkSize {
		writeError(w, http.StatusBadRequest, codeBlobUploadInvalid, "chunk exceeds size limit")
		return nil, false
	}
	return chunk, true
}

func (h *Handler) writeBlobCreated(w http.ResponseWriter, name string, dgst digest.Digest) {
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", name, dgst.String()))
	w.Header().Set("Content-Length", "0")
	w.Header().Set(contentDigestHeader, dgst.String())
	w.WriteHeader(http.StatusCreated)
}

// paginationParams reads the last and n window parameters. n defaults to
// zero, meaning no limit.
func paginationParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	last := r.URL.Query().Get("last")
	rawN := r.URL.Query().Get("n")
	if rawN == "" {
		return last, 0, true
	}
	n, err := strconv.Atoi(rawN)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, codeUnsupported, "invalid pagination limit")
		return "", 0, false
	}
	return last, n, true
}

// rangeHeader renders the inclusive committed range of an upload. An
// empty session reports 0-0.
func rangeHeader(offset int64) string {
	if offset <= 0 {
		return "0-0"
	}
	return fmt.Sprintf("0-%d", offset-1)
}

func uploadLocation(name, uuid string) string {
	return fmt.Sprintf("/v2/%s/blobs/uploads/%s", name, uuid)
}

func isBlobUnknown(err error) bool {
	return errors.Is(err, usecase.ErrBlobUnknown)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
