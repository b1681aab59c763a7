// Package registry implements the container registry use cases over an
// abstract content store.
package registry

import (
	"fmt"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/artipie/stevedore/internal/boundaries/out"
)

// Service implements the RegistryService contract. All repository data
// lives in the content store under a fixed key layout:
//
//	blobs/{algorithm}/{hex[:2]}/{hex}                          blob bytes, shared
//	repositories/{name}/layers/{algorithm}/{hex}               blob link
//	repositories/{name}/manifests/revisions/{algorithm}/{hex}  manifest bytes
//	repositories/{name}/manifests/tags/{tag}/current           digest string
//	uploads/{name}/{uuid}/data                                 upload bytes
//
// Blob links make mounts cheap: mounting writes only the link key of the
// target repository while the bytes stay shared under blobs/.
type Service struct {
	store    out.ContentStore
	eventBus out.EventPublisher
}

// NewService creates a registry service. The event publisher may be nil.
func NewService(store out.ContentStore, eventBus out.EventPublisher) *Service {
	return &Service{
		store:    store,
		eventBus: eventBus,
	}
}

const (
	blobsPrefix = "blobs"
	reposPrefix = "repositories"
	uplsPrefix  = "uploads"
)

func blobDataKey(dgst digest.Digest) string {
	hex := dgst.Encoded()
	if len(hex) < 2 {
		return fmt.Sprintf("%s/%s/%s", blobsPrefix, dgst.Algorithm(), hex)
	}
	return fmt.Sprintf("%s/%s/%s/%s", blobsPrefix, dgst.Algorithm(), hex[:2], hex)
}

func blobLinkKey(name string, dgst digest.Digest) string {
	return fmt.Sprintf("%s/%s/layers/%s/%s", reposPrefix, name, dgst.Algorithm(), dgst.Encoded())
}

func manifestRevisionKey(name string, dgst digest.Digest) string {
	return fmt.Sprintf("%s/%s/manifests/revisions/%s/%s", reposPrefix, name, dgst.Algorithm(), dgst.Encoded())
}

func tagLinkKey(name, tag string) string {
	return fmt.Sprintf("%s/%s/manifests/tags/%s/current", reposPrefix, name, tag)
}

func tagsPrefix(name string) string {
	return fmt.Sprintf("%s/%s/manifests/tags/", reposPrefix, name)
}

func uploadDataKey(name, uuid string) string {
	return fmt.Sprintf("%s/%s/%s/data", uplsPrefix, name, uuid)
}

// paginate applies the exclusive cursor and page size of the listing
// endpoints: results strictly greater than last, at most n entries
// (n <= 0 means unbounded). Input must already be sorted.
func paginate(sorted []string, last string, n int) []string {
	start := 0
	if last != "" {
		start = sort.SearchStrings(sorted, last)
		if start < len(sorted) && sorted[start] == last {
			start++
		}
	}
	page := sorted[start:]
	if n > 0 && len(page) > n {
		page = page[:n]
	}
	return page
}

// sortedUnique sorts keys and drops duplicates in place.
func sortedUnique(items []string) []string {
	sort.Strings(items)
	result := items[:0]
	var prev string
	for i, item := range items {
		if i == 0 || item != prev {
			result = append(result, item)
		}
		prev = item
	}
	return result
}
