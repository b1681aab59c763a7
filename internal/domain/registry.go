package domain

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Manifest represents a stored OCI image manifest.
type Manifest struct {
	Name        string
	Reference   string
	ContentType string
	Data        []byte
	Digest      digest.Digest
	Size        int64
	Layers      []Layer
	CreatedAt   time.Time
}

// Layer is a blob referenced by a manifest, used for telemetry on push.
type Layer struct {
	Digest digest.Digest
	Size   int64
}

// TotalLayerSize sums the sizes of all referenced layers.
func (m *Manifest) TotalLayerSize() int64 {
	var total int64
	for _, l := range m.Layers {
		total += l.Size
	}
	return total
}

// Blob represents a binary large object (layer or config) in the registry.
type Blob struct {
	Name      string
	Digest    digest.Digest
	Size      int64
	CreatedAt time.Time
}

// Repository represents an image repository known to the registry.
type Repository struct {
	Name string
	Tags []string
}

// Upload represents an in-progress resumable blob upload.
type Upload struct {
	UUID      string
	Name      string
	Offset    int64
	StartedAt time.Time
}
