package events

import (
	"time"
)

type EventType string

const (
	ManifestPushed EventType = "manifest.pushed"
	BlobMounted    EventType = "blob.mounted"
	UploadFinished EventType = "upload.finished"
)

type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Repo      string      `json:"repo,omitempty"`
	Tag       string      `json:"tag,omitempty"`
	Digest    string      `json:"digest,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ManifestPushedPayload carries the telemetry attached to a manifest push:
// which repository and tag were written and the combined size of the layers
// the manifest references.
type ManifestPushedPayload struct {
	Repo      string `json:"repo"`
	Reference string `json:"reference"`
	Digest    string `json:"digest"`
	LayerSize int64  `json:"layer_size"`
}

// BlobMountedPayload is attached when a blob is cross-mounted from a
// sibling repository.
type BlobMountedPayload struct {
	From   string `json:"from"`
	Repo   string `json:"repo"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// UploadFinishedPayload is attached when a resumable upload finalizes.
type UploadFinishedPayload struct {
	Repo   string `json:"repo"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

type EventHandler interface {
	Handle(event Event) error
	CanHandle(eventType EventType) bool
}

type EventBus interface {
	Publish(eventType EventType, payload interface{}) error
	Subscribe(handler EventHandler) error
	Unsubscribe(handler EventHandler) error
	Start() error
	Stop() error
}
