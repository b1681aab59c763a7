package registry

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrBlobUnknown indicates the requested blob is not present in the
	// repository namespace.
	ErrBlobUnknown = errors.New("blob unknown to registry")

	// ErrManifestUnknown indicates no manifest is stored under the
	// requested reference.
	ErrManifestUnknown = errors.New("manifest unknown to registry")

	// ErrUploadUnknown indicates an upload session that never existed or
	// already reached a terminal state.
	ErrUploadUnknown = errors.New("blob upload unknown to registry")

	// ErrDigestInvalid indicates a client-supplied digest that does not
	// match the uploaded content.
	ErrDigestInvalid = errors.New("provided digest did not match uploaded content")

	// ErrNameInvalid indicates an invalid repository name.
	ErrNameInvalid = errors.New("invalid repository name")

	// ErrTagInvalid indicates an invalid tag name.
	ErrTagInvalid = errors.New("invalid tag")

	// ErrManifestInvalid indicates manifest content that cannot be stored.
	ErrManifestInvalid = errors.New("manifest invalid")
)

// UploadUnknownError wraps ErrUploadUnknown with the offending session id.
type UploadUnknownError struct {
	UUID string
}

func (e *UploadUnknownError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.UUID, ErrUploadUnknown)
}

func (e *UploadUnknownError) Unwrap() error {
	return ErrUploadUnknown
}

// DigestMismatchError wraps ErrDigestInvalid with both digests.
type DigestMismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("digest mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *DigestMismatchError) Unwrap() error {
	return ErrDigestInvalid
}
