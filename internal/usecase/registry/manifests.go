package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/boundaries/out"
	"github.com/artipie/stevedore/internal/domain"
	"github.com/artipie/stevedore/internal/events"
)

// GetManifest retrieves a manifest by tag or digest. Tag references are
// resolved through the tag link to the currently associated digest.
func (s *Service) GetManifest(ctx context.Context, name string, ref domain.Reference) (*domain.Manifest, error) {
	dgst, err := s.resolveReference(ctx, name, ref)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Read(ctx, manifestRevisionKey(name, dgst))
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return nil, ErrManifestUnknown
		}
		return nil, fmt.Errorf("read manifest revision: %w", err)
	}

	return &domain.Manifest{
		Name:        name,
		Reference:   ref.String(),
		ContentType: manifestMediaType(data),
		Data:        data,
		Digest:      dgst,
		Size:        int64(len(data)),
	}, nil
}

// ManifestExists reports whether a manifest is stored under the reference.
// Used by the authorization layer to pick the scope for manifest pushes.
func (s *Service) ManifestExists(ctx context.Context, name string, ref domain.Reference) (bool, error) {
	_, err := s.resolveReference(ctx, name, ref)
	if errors.Is(err, ErrManifestUnknown) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutManifest stores manifest content under its computed digest and, for
// tag references, re-points the tag at the new digest. Content is
// validated first: the mediaType field is required and every blob the
// manifest references must already be present in the blob store.
func (s *Service) PutManifest(ctx context.Context, name string, ref domain.Reference, contentType string, data []byte) (*domain.Manifest, error) {
	dgst := digest.FromBytes(data)

	var parsed v1.Manifest
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrManifestInvalid, err)
	}
	if err := s.validateManifest(ctx, parsed); err != nil {
		return nil, err
	}
	layers := manifestLayers(parsed)

	if err := s.store.Write(ctx, manifestRevisionKey(name, dgst), data); err != nil {
		return nil, fmt.Errorf("write manifest revision: %w", err)
	}

	if !ref.IsDigest() {
		if err := s.store.Write(ctx, tagLinkKey(name, ref.Tag()), []byte(dgst.String())); err != nil {
			return nil, fmt.Errorf("write tag link: %w", err)
		}
	}

	manifest := &domain.Manifest{
		Name:        name,
		Reference:   ref.String(),
		ContentType: contentType,
		Data:        data,
		Digest:      dgst,
		Size:        int64(len(data)),
		Layers:      layers,
	}

	if s.eventBus != nil && !ref.IsDigest() {
		if err := s.eventBus.Publish(events.ManifestPushed, events.ManifestPushedPayload{
			Repo:      name,
			Reference: ref.Tag(),
			Digest:    dgst.String(),
			LayerSize: manifest.TotalLayerSize(),
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish manifest pushed event")
		}
	}

	log.Info().
		Str("name", name).
		Str("reference", ref.String()).
		Str("digest", dgst.String()).
		Msg("Manifest stored")

	return manifest, nil
}

// Tags returns the repository's tags, lexicographically ordered, paginated
// with an exclusive cursor. A repository with no tags yields an empty list.
func (s *Service) Tags(ctx context.Context, name, last string, n int) ([]string, error) {
	prefix := tagsPrefix(name)
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags := make([]string, 0, len(keys))
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if tag, ok := strings.CutSuffix(rest, "/current"); ok && !strings.Contains(tag, "/") {
			tags = append(tags, tag)
		}
	}

	return paginate(sortedUnique(tags), last, n), nil
}

func (s *Service) resolveReference(ctx context.Context, name string, ref domain.Reference) (digest.Digest, error) {
	if ref.IsDigest() {
		present, err := s.store.Exists(ctx, manifestRevisionKey(name, ref.Digest()))
		if err != nil {
			return "", fmt.Errorf("check manifest revision: %w", err)
		}
		if !present {
			return "", ErrManifestUnknown
		}
		return ref.Digest(), nil
	}

	raw, err := s.store.Read(ctx, tagLinkKey(name, ref.Tag()))
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return "", ErrManifestUnknown
		}
		return "", fmt.Errorf("read tag link: %w", err)
	}

	dgst, err := digest.Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("corrupt tag link for %s/%s: %w", name, ref.Tag(), err)
	}
	return dgst, nil
}

// manifestMediaType extracts the mediaType field from manifest content,
// defaulting to the OCI manifest media type.
func manifestMediaType(data []byte) string {
	var probe struct {
		MediaType string `json:"mediaType"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.MediaType != "" {
		return probe.MediaType
	}
	return v1.MediaTypeImageManifest
}

// validateManifest enforces the push-time content rules: a non-empty
// mediaType and presence of every referenced blob. Layers served from
// external URLs are exempt from the presence check.
func (s *Service) validateManifest(ctx context.Context, manifest v1.Manifest) error {
	if manifest.MediaType == "" {
		return fmt.Errorf("%w: required field mediaType is empty", ErrManifestInvalid)
	}

	referenced := make([]digest.Digest, 0, len(manifest.Layers)+1)
	if manifest.Config.Digest != "" {
		referenced = append(referenced, manifest.Config.Digest)
	}
	for _, desc := range manifest.Layers {
		if len(desc.URLs) > 0 {
			continue
		}
		referenced = append(referenced, desc.Digest)
	}

	for _, dgst := range referenced {
		if err := dgst.Validate(); err != nil {
			return fmt.Errorf("%w: invalid blob digest %q", ErrManifestInvalid, dgst)
		}
		present, err := s.store.Exists(ctx, blobDataKey(dgst))
		if err != nil {
			return fmt.Errorf("check manifest blob: %w", err)
		}
		if !present {
			return fmt.Errorf("%w: blob does not exist: %s", ErrManifestInvalid, dgst)
		}
	}
	return nil
}

// manifestLayers extracts layer descriptors for push telemetry. Index
// documents and manifests without layers yield an empty slice.
func manifestLayers(manifest v1.Manifest) []domain.Layer {
	layers := make([]domain.Layer, 0, len(manifest.Layers))
	for _, desc := range manifest.Layers {
		layers = append(layers, domain.Layer{Digest: desc.Digest, Size: desc.Size})
	}
	return layers
}
