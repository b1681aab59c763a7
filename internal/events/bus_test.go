package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects handled events for assertions.
type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	types  map[EventType]bool
}

func newRecordingHandler(types ...EventType) *recordingHandler {
	h := &recordingHandler{types: make(map[EventType]bool)}
	for _, t := range types {
		h.types[t] = true
	}
	return h
}

func (h *recordingHandler) Handle(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) CanHandle(eventType EventType) bool {
	return h.types[eventType]
}

func (h *recordingHandler) received() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]Event, len(h.events))
	copy(cp, h.events)
	return cp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEventBusDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(10)
	handler := newRecordingHandler(ManifestPushed)
	require.NoError(t, bus.Subscribe(handler))
	require.NoError(t, bus.Start())
	defer bus.Stop()

	err := bus.Publish(ManifestPushed, ManifestPushedPayload{
		Repo:      "library/alpine",
		Reference: "latest",
		Digest:    "sha256:abcd",
		LayerSize: 42,
	})
	require.NoError(t, err)

	waitFor(t, func() bool { return len(handler.received()) == 1 })

	got := handler.received()[0]
	assert.Equal(t, ManifestPushed, got.Type)
	assert.Equal(t, "library/alpine", got.Repo)
	assert.Equal(t, "latest", got.Tag)
	assert.Equal(t, "sha256:abcd", got.Digest)
	assert.NotEmpty(t, got.ID)
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewInMemoryEventBus(10)
	manifestOnly := newRecordingHandler(ManifestPushed)
	uploads := newRecordingHandler(UploadFinished)
	require.NoError(t, bus.Subscribe(manifestOnly))
	require.NoError(t, bus.Subscribe(uploads))
	require.NoError(t, bus.Start())
	defer bus.Stop()

	require.NoError(t, bus.Publish(UploadFinished, UploadFinishedPayload{
		Repo:   "library/alpine",
		Digest: "sha256:abcd",
		Size:   10,
	}))

	waitFor(t, func() bool { return len(uploads.received()) == 1 })
	assert.Empty(t, manifestOnly.received())
	assert.Equal(t, "library/alpine", uploads.received()[0].Repo)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(10)
	handler := newRecordingHandler(BlobMounted)
	require.NoError(t, bus.Subscribe(handler))
	require.NoError(t, bus.Unsubscribe(handler))
	require.NoError(t, bus.Start())
	defer bus.Stop()

	require.NoError(t, bus.Publish(BlobMounted, BlobMountedPayload{
		Repo: "team/app", Digest: "sha256:abcd",
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, handler.received())
}

func TestEventBusPublishAfterStop(t *testing.T) {
	bus := NewInMemoryEventBus(10)
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	// Even with buffer space left, a stopped bus refuses the event and
	// says why.
	err := bus.Publish(ManifestPushed, ManifestPushedPayload{Repo: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestEventBusPublishWhenFull(t *testing.T) {
	// Never started: nothing drains the single-slot channel.
	bus := NewInMemoryEventBus(1)

	require.NoError(t, bus.Publish(ManifestPushed, ManifestPushedPayload{Repo: "a"}))
	err := bus.Publish(ManifestPushed, ManifestPushedPayload{Repo: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}
