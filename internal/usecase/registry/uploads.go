package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/artipie/stevedore/internal/boundaries/out"
	"github.com/artipie/stevedore/internal/domain"
	"github.com/artipie/stevedore/internal/events"
)

// StartUpload creates a fresh upload session with offset zero.
func (s *Service) StartUpload(ctx context.Context, name string) (*domain.Upload, error) {
	id := uuid.New().String()

	if err := s.store.Write(ctx, uploadDataKey(name, id), []byte{}); err != nil {
		return nil, fmt.Errorf("create upload session: %w", err)
	}

	log.Debug().Str("name", name).Str("uuid", id).Msg("Blob upload started")

	return &domain.Upload{UUID: id, Name: name, Offset: 0}, nil
}

// AppendUpload appends a chunk at the current offset and returns the new
// offset. Chunks are applied strictly in order; there is no per-session
// lock, a single client is expected to drive one session serially.
func (s *Service) AppendUpload(ctx context.Context, name, id string, chunk []byte) (*domain.Upload, error) {
	key := uploadDataKey(name, id)
	if err := s.requireUpload(ctx, key, id); err != nil {
		return nil, err
	}

	size, err := s.store.Append(ctx, key, chunk)
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return nil, &UploadUnknownError{UUID: id}
		}
		return nil, fmt.Errorf("append upload chunk: %w", err)
	}

	return &domain.Upload{UUID: id, Name: name, Offset: size}, nil
}

// UploadOffset reports the current offset without changing session state.
func (s *Service) UploadOffset(ctx context.Context, name, id string) (*domain.Upload, error) {
	key := uploadDataKey(name, id)
	if err := s.requireUpload(ctx, key, id); err != nil {
		return nil, err
	}

	size, err := s.store.Size(ctx, key)
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return nil, &UploadUnknownError{UUID: id}
		}
		return nil, fmt.Errorf("read upload size: %w", err)
	}

	return &domain.Upload{UUID: id, Name: name, Offset: size}, nil
}

// CompleteUpload finalizes the accumulated bytes as a blob. The digest of
// the accumulated content is recomputed with the client digest's algorithm
// and compared before anything is written; a mismatch leaves the session
// intact so the client can retry with the right digest.
func (s *Service) CompleteUpload(ctx context.Context, name, id string, dgst digest.Digest) (*domain.Blob, error) {
	key := uploadDataKey(name, id)
	if err := s.requireUpload(ctx, key, id); err != nil {
		return nil, err
	}

	data, err := s.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return nil, &UploadUnknownError{UUID: id}
		}
		return nil, fmt.Errorf("read upload data: %w", err)
	}

	actual := dgst.Algorithm().FromBytes(data)
	if actual != dgst {
		return nil, &DigestMismatchError{Expected: dgst, Actual: actual}
	}

	dataKey := blobDataKey(dgst)
	present, err := s.store.Exists(ctx, dataKey)
	if err != nil {
		return nil, fmt.Errorf("check blob data: %w", err)
	}
	if !present {
		if err := s.store.Write(ctx, dataKey, data); err != nil {
			return nil, fmt.Errorf("write blob data: %w", err)
		}
	}
	if err := s.linkBlob(ctx, name, dgst); err != nil {
		return nil, fmt.Errorf("link blob: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, out.ErrKeyNotFound) {
		log.Warn().Err(err).Str("uuid", id).Msg("Failed to delete finished upload session")
	}

	if s.eventBus != nil {
		if err := s.eventBus.Publish(events.UploadFinished, events.UploadFinishedPayload{
			Repo:   name,
			Digest: dgst.String(),
			Size:   int64(len(data)),
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish upload finished event")
		}
	}

	log.Info().
		Str("name", name).
		Str("uuid", id).
		Str("digest", dgst.String()).
		Int("size", len(data)).
		Msg("Blob upload completed")

	return &domain.Blob{Name: name, Digest: dgst, Size: int64(len(data))}, nil
}

// CancelUpload discards the session and its partial bytes.
func (s *Service) CancelUpload(ctx context.Context, name, id string) error {
	key := uploadDataKey(name, id)
	if err := s.requireUpload(ctx, key, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return &UploadUnknownError{UUID: id}
		}
		return fmt.Errorf("delete upload session: %w", err)
	}

	log.Debug().Str("name", name).Str("uuid", id).Msg("Blob upload cancelled")
	return nil
}

// requireUpload distinguishes an active session from one that never
// existed or already finished.
func (s *Service) requireUpload(ctx context.Context, key, id string) error {
	active, err := s.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check upload session: %w", err)
	}
	if !active {
		return &UploadUnknownError{UUID: id}
	}
	return nil
}
