package events

import (
	"github.com/rs/zerolog/log"
)

// AuditHandler logs artifact lifecycle events at info level. It stands in
// for external consumers (deployment hooks, audit sinks) that subscribe to
// the same bus.
type AuditHandler struct{}

func NewAuditHandler() *AuditHandler {
	return &AuditHandler{}
}

func (h *AuditHandler) CanHandle(eventType EventType) bool {
	switch eventType {
	case ManifestPushed, BlobMounted, UploadFinished:
		return true
	default:
		return false
	}
}

func (h *AuditHandler) Handle(event Event) error {
	evt := log.Info().
		Str("event_type", string(event.Type)).
		Str("repo", event.Repo).
		Str("digest", event.Digest)
	if event.Tag != "" {
		evt = evt.Str("tag", event.Tag)
	}
	if p, ok := event.Data.(ManifestPushedPayload); ok {
		evt = evt.Int64("layer_size", p.LayerSize)
	}
	evt.Msg("Artifact event")
	return nil
}
