package in

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/artipie/stevedore/internal/domain"
)

// RegistryService defines the contract for container registry operations.
type RegistryService interface {
	// Manifest operations
	GetManifest(ctx context.Context, name string, ref domain.Reference) (*domain.Manifest, error)
	PutManifest(ctx context.Context, name string, ref domain.Reference, contentType string, data []byte) (*domain.Manifest, error)
	ManifestExists(ctx context.Context, name string, ref domain.Reference) (bool, error)

	// Blob operations
	GetBlob(ctx context.Context, name string, dgst digest.Digest) (io.ReadCloser, *domain.Blob, error)
	StatBlob(ctx context.Context, name string, dgst digest.Digest) (*domain.Blob, error)
	MountBlob(ctx context.Context, from, name string, dgst digest.Digest) (*domain.Blob, error)

	// Upload operations
	StartUpload(ctx context.Context, name string) (*domain.Upload, error)
	AppendUpload(ctx context.Context, name, uuid string, chunk []byte) (*domain.Upload, error)
	UploadOffset(ctx context.Context, name, uuid string) (*domain.Upload, error)
	CompleteUpload(ctx context.Context, name, uuid string, dgst digest.Digest) (*domain.Blob, error)
	CancelUpload(ctx context.Context, name, uuid string) error

	// Listing operations
	Tags(ctx context.Context, name, last string, n int) ([]string, error)
	Catalog(ctx context.Context, last string, n int) ([]string, error)
}
