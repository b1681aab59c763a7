package registry

import (
	"context"
	"fmt"
	"strings"
)

// Catalog returns all repository names known to the store, sorted and
// paginated with an exclusive cursor.
func (s *Service) Catalog(ctx context.Context, last string, n int) ([]string, error) {
	prefix := reposPrefix + "/"
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if name, ok := repoNameFromKey(strings.TrimPrefix(key, prefix)); ok {
			names = append(names, name)
		}
	}

	return paginate(sortedUnique(names), last, n), nil
}

// repoNameFromKey extracts the repository name from a key relative to the
// repositories/ prefix. Names may contain slashes, so the name ends at the
// layers/ or manifests/ segment of the layout.
func repoNameFromKey(rest string) (string, bool) {
	for _, marker := range []string{"/layers/", "/manifests/"} {
		if i := strings.Index(rest, marker); i > 0 {
			return rest[:i], true
		}
	}
	return "", false
}
