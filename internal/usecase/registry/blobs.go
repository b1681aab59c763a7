package registry

import (
	"context"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/domain"
	"github.com/artipie/stevedore/internal/events"
)

// StatBlob returns blob metadata if the digest is linked into the
// repository namespace, ErrBlobUnknown otherwise.
func (s *Service) StatBlob(ctx context.Context, name string, dgst digest.Digest) (*domain.Blob, error) {
	linked, err := s.store.Exists(ctx, blobLinkKey(name, dgst))
	if err != nil {
		return nil, fmt.Errorf("check blob link: %w", err)
	}
	if !linked {
		return nil, ErrBlobUnknown
	}

	size, err := s.store.Size(ctx, blobDataKey(dgst))
	if err != nil {
		return nil, fmt.Errorf("stat blob data: %w", err)
	}

	return &domain.Blob{Name: name, Digest: dgst, Size: size}, nil
}

// GetBlob returns the blob content stream together with its metadata.
func (s *Service) GetBlob(ctx context.Context, name string, dgst digest.Digest) (io.ReadCloser, *domain.Blob, error) {
	blob, err := s.StatBlob(ctx, name, dgst)
	if err != nil {
		return nil, nil, err
	}

	reader, size, err := s.store.ReadStream(ctx, blobDataKey(dgst))
	if err != nil {
		return nil, nil, fmt.Errorf("read blob data: %w", err)
	}
	blob.Size = size

	return reader, blob, nil
}

// MountBlob links an existing blob from a sibling repository into the
// target repository without copying bytes. An absent source blob returns
// ErrBlobUnknown; the caller falls back to starting a regular upload.
func (s *Service) MountBlob(ctx context.Context, from, name string, dgst digest.Digest) (*domain.Blob, error) {
	source, err := s.StatBlob(ctx, from, dgst)
	if err != nil {
		return nil, err
	}

	if err := s.store.Write(ctx, blobLinkKey(name, dgst), []byte(dgst.String())); err != nil {
		return nil, fmt.Errorf("write blob link: %w", err)
	}

	if s.eventBus != nil {
		if err := s.eventBus.Publish(events.BlobMounted, events.BlobMountedPayload{
			From:   from,
			Repo:   name,
			Digest: dgst.String(),
			Size:   source.Size,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish blob mounted event")
		}
	}

	log.Debug().
		Str("from", from).
		Str("name", name).
		Str("digest", dgst.String()).
		Msg("Blob mounted")

	return &domain.Blob{Name: name, Digest: dgst, Size: source.Size}, nil
}

// linkBlob records a finalized blob under the repository namespace.
func (s *Service) linkBlob(ctx context.Context, name string, dgst digest.Digest) error {
	return s.store.Write(ctx, blobLinkKey(name, dgst), []byte(dgst.String()))
}
