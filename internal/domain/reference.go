package domain

import (
	"errors"

	"github.com/opencontainers/go-digest"

	"github.com/artipie/stevedore/pkg/validation"
)

// ErrReferenceInvalid indicates a path segment that is neither a valid
// digest nor a valid tag.
var ErrReferenceInvalid = errors.New("invalid manifest reference")

// Reference identifies a manifest either by tag or by digest. It is parsed
// from the reference segment of a manifest URL: a well-formed digest string
// selects the digest variant, anything else is treated as a tag.
type Reference struct {
	tag  string
	dgst digest.Digest
}

// ParseReference parses a URL path segment into a Reference. The digest
// grammar is attempted first, then the tag grammar.
func ParseReference(s string) (Reference, error) {
	if d, err := digest.Parse(s); err == nil {
		return Reference{dgst: d}, nil
	}
	if err := validation.ValidateTag(s); err != nil {
		return Reference{}, ErrReferenceInvalid
	}
	return Reference{tag: s}, nil
}

// ReferenceFromDigest builds a digest reference.
func ReferenceFromDigest(d digest.Digest) Reference {
	return Reference{dgst: d}
}

// IsDigest reports whether the reference selects a manifest by digest.
func (r Reference) IsDigest() bool {
	return r.dgst != ""
}

// Tag returns the tag variant, empty for digest references.
func (r Reference) Tag() string {
	return r.tag
}

// Digest returns the digest variant, empty for tag references.
func (r Reference) Digest() digest.Digest {
	return r.dgst
}

// String returns the original path-segment form of the reference.
func (r Reference) String() string {
	if r.IsDigest() {
		return r.dgst.String()
	}
	return r.tag
}
