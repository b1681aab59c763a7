package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artipie/stevedore/internal/adapters/dto"
	"github.com/artipie/stevedore/internal/adapters/out/access"
	"github.com/artipie/stevedore/internal/adapters/out/store"
	"github.com/artipie/stevedore/internal/config"
	usecase "github.com/artipie/stevedore/internal/usecase/registry"
)

const manifestTemplate = `{
  "schemaVersion": 2,
  "mediaType": "application/vnd.oci.image.manifest.v1+json",
  "config": {
    "mediaType": "application/vnd.oci.image.config.v1+json",
    "digest": "%s",
    "size": %d
  },
  "layers": [
    {
      "mediaType": "application/vnd.oci.image.layer.v1.tar+gzip",
      "digest": "%s",
      "size": %d
    }
  ]
}`

var (
	seedConfigContent = []byte(`{"architecture":"amd64"}`)
	seedLayerContent  = []byte("layer bytes behind the manifest")
)

// newOpenHandler builds a handler with authentication disabled.
func newOpenHandler() *Handler {
	svc := usecase.NewService(store.NewMemoryStore(), nil)
	return NewHandler(svc, access.Anonymous{}, access.AllowAll{}, "Test Registry")
}

// seedHTTPManifest pushes a config and a layer blob through the API and
// renders a manifest referencing them.
func seedHTTPManifest(t *testing.T, h *Handler, name string) []byte {
	t.Helper()
	cfgDgst := pushBlob(t, h, name, seedConfigContent)
	layerDgst := pushBlob(t, h, name, seedLayerContent)
	return []byte(fmt.Sprintf(manifestTemplate,
		cfgDgst, len(seedConfigContent), layerDgst, len(seedLayerContent)))
}

// seedServiceManifest seeds blobs directly through the service, for
// handlers whose HTTP surface requires credentials.
func seedServiceManifest(t *testing.T, svc *usecase.Service, name string) []byte {
	t.Helper()
	ctx := context.Background()
	upload := func(content []byte) digest.Digest {
		up, err := svc.StartUpload(ctx, name)
		require.NoError(t, err)
		_, err = svc.AppendUpload(ctx, name, up.UUID, content)
		require.NoError(t, err)
		dgst := digest.FromBytes(content)
		_, err = svc.CompleteUpload(ctx, name, up.UUID, dgst)
		require.NoError(t, err)
		return dgst
	}
	cfgDgst := upload(seedConfigContent)
	layerDgst := upload(seedLayerContent)
	return []byte(fmt.Sprintf(manifestTemplate,
		cfgDgst, len(seedConfigContent), layerDgst, len(seedLayerContent)))
}

func do(t *testing.T, h *Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// decodeError unpacks the error envelope and returns the first code.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.RegistryErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	require.NotEmpty(t, resp.Errors)
	assert.NotEmpty(t, resp.Errors[0].Message)
	return resp.Errors[0].Code
}

// pushBlob drives a full chunked upload through the HTTP surface and
// returns the blob digest.
func pushBlob(t *testing.T, h *Handler, name string, content []byte) digest.Digest {
	t.Helper()

	w := do(t, h, http.MethodPost, "/v2/"+name+"/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	location := w.Header().Get("Location")
	require.NotEmpty(t, location)

	w = do(t, h, http.MethodPatch, location, content)
	require.Equal(t, http.StatusAccepted, w.Code)

	dgst := digest.FromBytes(content)
	w = do(t, h, http.MethodPut, location+"?digest="+dgst.String(), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dgst
}

func TestBaseProbe(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v2/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, apiVersionValue, w.Header().Get(apiVersionHeader))
	assert.JSONEq(t, "{}", w.Body.String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v1/whatever", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, decodeError(t, w))

	// Known path, unsupported method.
	w = do(t, h, http.MethodDelete, "/v2/library/alpine/tags/list", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, codeUnsupported, decodeError(t, w))
}

func TestUploadLifecycle(t *testing.T) {
	h := newOpenHandler()
	content := []byte("blob content pushed in chunks")

	// Start.
	w := do(t, h, http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	uuid := w.Header().Get(uploadUUIDHeader)
	require.NotEmpty(t, uuid)
	location := w.Header().Get("Location")
	assert.Equal(t, "/v2/library/alpine/blobs/uploads/"+uuid, location)
	assert.Equal(t, "0-0", w.Header().Get("Range"))
	assert.Equal(t, "0", w.Header().Get("Content-Length"))

	// First chunk.
	w = do(t, h, http.MethodPatch, location, content[:9])
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "0-8", w.Header().Get("Range"))
	assert.Equal(t, uuid, w.Header().Get(uploadUUIDHeader))

	// Second chunk.
	w = do(t, h, http.MethodPatch, location, content[9:])
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, fmt.Sprintf("0-%d", len(content)-1), w.Header().Get("Range"))

	// Status probe.
	w = do(t, h, http.MethodGet, location, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, fmt.Sprintf("0-%d", len(content)-1), w.Header().Get("Range"))
	assert.Equal(t, uuid, w.Header().Get(uploadUUIDHeader))

	// Complete.
	dgst := digest.FromBytes(content)
	w = do(t, h, http.MethodPut, location+"?digest="+dgst.String(), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v2/library/alpine/blobs/"+dgst.String(), w.Header().Get("Location"))
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))

	// The session is gone.
	w = do(t, h, http.MethodGet, location, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeBlobUploadUnknown, decodeError(t, w))

	// The blob serves back.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/blobs/"+dgst.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))

	// HEAD carries the same metadata without a body.
	w = do(t, h, http.MethodHead, "/v2/library/alpine/blobs/"+dgst.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fmt.Sprintf("%d", len(content)), w.Header().Get("Content-Length"))
}

func TestMonolithicUpload(t *testing.T) {
	h := newOpenHandler()
	content := []byte("single request upload")
	dgst := digest.FromBytes(content)

	w := do(t, h, http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	location := w.Header().Get("Location")

	// PUT with the remaining bytes in the body.
	w = do(t, h, http.MethodPut, location+"?digest="+dgst.String(), content)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodHead, "/v2/library/alpine/blobs/"+dgst.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadCancel(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	uuid := w.Header().Get(uploadUUIDHeader)
	location := w.Header().Get("Location")

	w = do(t, h, http.MethodDelete, location, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uuid, w.Header().Get(uploadUUIDHeader))

	w = do(t, h, http.MethodGet, location, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeBlobUploadUnknown, decodeError(t, w))
}

func TestUploadUnknownSession(t *testing.T) {
	h := newOpenHandler()
	location := "/v2/library/alpine/blobs/uploads/ba7c244e-1c8e-47d9-a3a0-0fd9ae768907"

	for _, method := range []string{http.MethodPatch, http.MethodGet, http.MethodDelete} {
		w := do(t, h, method, location, []byte("x"))
		assert.Equal(t, http.StatusNotFound, w.Code, method)
		assert.Equal(t, codeBlobUploadUnknown, decodeError(t, w))
	}

	dgst := digest.FromString("x")
	w := do(t, h, http.MethodPut, location+"?digest="+dgst.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeBlobUploadUnknown, decodeError(t, w))
}

func TestUploadMalformedUUID(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodPatch, "/v2/library/alpine/blobs/uploads/not-a-uuid", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeBlobUploadInvalid, decodeError(t, w))
}

func TestUploadDigestMismatch(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	location := w.Header().Get("Location")

	w = do(t, h, http.MethodPatch, location, []byte("the actual bytes"))
	require.Equal(t, http.StatusAccepted, w.Code)

	wrong := digest.FromString("different bytes")
	w = do(t, h, http.MethodPut, location+"?digest="+wrong.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeDigestInvalid, decodeError(t, w))

	// Mismatch leaves the session open for a retry.
	w = do(t, h, http.MethodGet, location, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUploadCompleteRequiresDigest(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	location := w.Header().Get("Location")

	w = do(t, h, http.MethodPut, location, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeDigestInvalid, decodeError(t, w))
}

func TestBlobMount(t *testing.T) {
	h := newOpenHandler()
	dgst := pushBlob(t, h, "library/alpine", []byte("shared layer"))

	w := do(t, h, http.MethodPost,
		"/v2/team/app/blobs/uploads/?mount="+dgst.String()+"&from=library/alpine", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v2/team/app/blobs/"+dgst.String(), w.Header().Get("Location"))
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))

	w = do(t, h, http.MethodHead, "/v2/team/app/blobs/"+dgst.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBlobMountFallsBackToUpload(t *testing.T) {
	h := newOpenHandler()
	absent := digest.FromString("never pushed")

	w := do(t, h, http.MethodPost,
		"/v2/team/app/blobs/uploads/?mount="+absent.String()+"&from=library/alpine", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get(uploadUUIDHeader))
	assert.Equal(t, "0-0", w.Header().Get("Range"))
}

func TestBlobUnknown(t *testing.T) {
	h := newOpenHandler()
	dgst := digest.FromString("absent")

	w := do(t, h, http.MethodGet, "/v2/library/alpine/blobs/"+dgst.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeBlobUnknown, decodeError(t, w))
}

func TestBlobInvalidDigest(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v2/library/alpine/blobs/not-a-digest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeDigestInvalid, decodeError(t, w))
}

func TestManifestLifecycle(t *testing.T) {
	h := newOpenHandler()
	body := seedHTTPManifest(t, h, "library/alpine")
	dgst := digest.FromBytes(body)

	w := do(t, h, http.MethodPut, "/v2/library/alpine/manifests/v1.0", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v2/library/alpine/manifests/v1.0", w.Header().Get("Location"))
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))

	// GET by tag.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/manifests/v1.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.Bytes())
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))
	assert.Equal(t, "application/vnd.oci.image.manifest.v1+json", w.Header().Get("Content-Type"))

	// GET by digest.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/manifests/"+dgst.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.Bytes())

	// HEAD mirrors the GET headers with an empty body.
	w = do(t, h, http.MethodHead, "/v2/library/alpine/manifests/v1.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dgst.String(), w.Header().Get(contentDigestHeader))
	assert.Empty(t, w.Body.Bytes())
}

func TestManifestPutRejectsUnknownBlobs(t *testing.T) {
	h := newOpenHandler()

	// Well-formed manifest whose config and layer were never uploaded.
	body := []byte(fmt.Sprintf(manifestTemplate,
		digest.FromString("config never uploaded"), 24,
		digest.FromString("layer never uploaded"), 35))

	w := do(t, h, http.MethodPut, "/v2/library/alpine/manifests/latest", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeManifestInvalid, decodeError(t, w))

	// Nothing was stored under the tag.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/manifests/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManifestUnknown(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v2/library/alpine/manifests/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeManifestUnknown, decodeError(t, w))
}

func TestManifestInvalidReference(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v2/library/alpine/manifests/.bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeTagInvalid, decodeError(t, w))
}

func TestInvalidRepositoryName(t *testing.T) {
	h := newOpenHandler()

	w := do(t, h, http.MethodGet, "/v2/UPPERCASE/manifests/latest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeNameInvalid, decodeError(t, w))
}

func TestTagsList(t *testing.T) {
	h := newOpenHandler()
	body := seedHTTPManifest(t, h, "library/alpine")

	for _, tag := range []string{"v2", "v1", "latest"} {
		w := do(t, h, http.MethodPut, "/v2/library/alpine/manifests/"+tag, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, h, http.MethodGet, "/v2/library/alpine/tags/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.TagListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "library/alpine", resp.Name)
	assert.Equal(t, []string{"latest", "v1", "v2"}, resp.Tags)

	// Windowed page with the exclusive cursor.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/tags/list?last=latest&n=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"v1"}, resp.Tags)

	// Invalid page size.
	w = do(t, h, http.MethodGet, "/v2/library/alpine/tags/list?n=banana", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalog(t *testing.T) {
	h := newOpenHandler()
	body := seedHTTPManifest(t, h, "library/alpine")

	for _, repo := range []string{"team/app", "library/alpine"} {
		w := do(t, h, http.MethodPut, "/v2/"+repo+"/manifests/latest", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, h, http.MethodGet, "/v2/_catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.CatalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"library/alpine", "team/app"}, resp.Repositories)

	w = do(t, h, http.MethodGet, "/v2/_catalog?last=library/alpine&n=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"team/app"}, resp.Repositories)
}

// --- authentication and authorization ---

var authUsers = map[string]config.UserConfig{
	"admin":    {Password: "secret", Actions: []string{"*"}},
	"reader":   {Password: "secret", Actions: []string{"pull", "base"}},
	"pusher":   {Password: "secret", Actions: []string{"pull", "push", "base"}},
	"releaser": {Password: "secret", Actions: []string{"pull", "push", "overwrite-tag", "base"}},
}

func newAuthHandler() (*Handler, *usecase.Service) {
	svc := usecase.NewService(store.NewMemoryStore(), nil)
	h := NewHandler(svc,
		access.NewBasicAuth(authUsers),
		access.NewStaticPolicy(authUsers),
		"Test Registry")
	return h, svc
}

func doAs(t *testing.T, h *Handler, user, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r := httptest.NewRequest(method, target, reader)
	if user != "" {
		r.SetBasicAuth(user, "secret")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAuthChallengeWithoutCredentials(t *testing.T) {
	h, _ := newAuthHandler()

	w := doAs(t, h, "", http.MethodGet, "/v2/", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="Test Registry"`, w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, apiVersionValue, w.Header().Get(apiVersionHeader))
	assert.Equal(t, codeUnauthorized, decodeError(t, w))
}

func TestAuthWrongPassword(t *testing.T) {
	h, _ := newAuthHandler()

	r := httptest.NewRequest(http.MethodGet, "/v2/", nil)
	r.SetBasicAuth("admin", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, codeUnauthorized, decodeError(t, w))
}

func TestAuthScopeDenied(t *testing.T) {
	h, _ := newAuthHandler()

	// A pull-only user cannot start an upload.
	w := doAs(t, h, "reader", http.MethodPost, "/v2/library/alpine/blobs/uploads/", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, codeDenied, decodeError(t, w))

	// Nor list the catalog.
	w = doAs(t, h, "reader", http.MethodGet, "/v2/_catalog", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// But pulling is fine.
	w = doAs(t, h, "reader", http.MethodGet, "/v2/library/alpine/tags/list", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManifestPushOverwriteRule(t *testing.T) {
	h, svc := newAuthHandler()
	body := seedServiceManifest(t, svc, "library/alpine")

	// A fresh tag needs only push.
	w := doAs(t, h, "pusher", http.MethodPut, "/v2/library/alpine/manifests/latest", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Re-pointing the now-existing tag needs the overwrite action,
	// which the pusher lacks.
	w = doAs(t, h, "pusher", http.MethodPut, "/v2/library/alpine/manifests/latest", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, codeDenied, decodeError(t, w))

	// The releaser holds overwrite-tag and may re-point it.
	w = doAs(t, h, "releaser", http.MethodPut, "/v2/library/alpine/manifests/latest", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	// A different, fresh tag is still open to the pusher.
	w = doAs(t, h, "pusher", http.MethodPut, "/v2/library/alpine/manifests/v2", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Pushing by digest never triggers the overwrite rule.
	dgst := digest.FromBytes(body)
	w = doAs(t, h, "pusher", http.MethodPut, "/v2/library/alpine/manifests/"+dgst.String(), body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestOverwriteScopeAloneAllowsFreshPush(t *testing.T) {
	users := map[string]config.UserConfig{
		"tagger": {Password: "secret", Actions: []string{"overwrite-tag"}},
	}
	svc := usecase.NewService(store.NewMemoryStore(), nil)
	h := NewHandler(svc, access.NewBasicAuth(users), access.NewStaticPolicy(users), "Test Registry")
	body := seedServiceManifest(t, svc, "library/alpine")

	// Either push or overwrite-tag satisfies a fresh-tag push.
	w := doAs(t, h, "tagger", http.MethodPut, "/v2/library/alpine/manifests/latest", body)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
