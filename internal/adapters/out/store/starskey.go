package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/starskey-io/starskey"

	"github.com/artipie/stevedore/internal/boundaries/out"
)

// StarskeyStore implements ContentStore on a starskey LSM-tree database.
// Values are stored with a one-byte frame marker so that empty values
// (upload session markers) survive a round trip; starskey returns nil for
// both absent keys and nil values. Append is read-modify-write; upload
// sessions are driven serially by a single client, so that is acceptable,
// but very large blobs are better served by the filesystem backend.
type StarskeyStore struct {
	db *starskey.Starskey
}

var _ out.ContentStore = (*StarskeyStore)(nil)

const valueMarker = 0x01

// NewStarskeyStore opens (or creates) the database under dbPath.
func NewStarskeyStore(dbPath string) (*StarskeyStore, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:        0755,
		Directory:         dbPath,
		FlushThreshold:    64 * 1024 * 1024,
		MaxLevel:          3,
		SizeFactor:        10,
		BloomFilter:       false, // mutually exclusive with SuRF
		SuRF:              true,  // prefix scans back the catalog and tag listings
		Logging:           false,
		Compression:       true,
		CompressionOption: starskey.SnappyCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("open starskey database: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Starskey store initialized")

	return &StarskeyStore{db: db}, nil
}

func (s *StarskeyStore) Exists(_ context.Context, key string) (bool, error) {
	value, err := s.db.Get([]byte(key))
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return len(value) > 0, nil
}

func (s *StarskeyStore) Read(_ context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(value) == 0 {
		return nil, out.ErrKeyNotFound
	}
	return value[1:], nil
}

func (s *StarskeyStore) ReadStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	value, err := s.Read(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(value)), int64(len(value)), nil
}

func (s *StarskeyStore) Write(_ context.Context, key string, value []byte) error {
	framed := make([]byte, 0, len(value)+1)
	framed = append(framed, valueMarker)
	framed = append(framed, value...)

	err := s.db.Update(func(txn *starskey.Txn) error {
		txn.Put([]byte(key), framed)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *StarskeyStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	existing, err := s.Read(ctx, key)
	if err != nil {
		return 0, err
	}
	combined := append(existing, value...)
	if err := s.Write(ctx, key, combined); err != nil {
		return 0, err
	}
	return int64(len(combined)), nil
}

func (s *StarskeyStore) Size(ctx context.Context, key string) (int64, error) {
	value, err := s.Read(ctx, key)
	if err != nil {
		return 0, err
	}
	return int64(len(value)), nil
}

func (s *StarskeyStore) Delete(ctx context.Context, key string) error {
	present, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !present {
		return out.ErrKeyNotFound
	}
	if err := s.db.Delete([]byte(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *StarskeyStore) List(ctx context.Context, prefix string) ([]string, error) {
	// FilterKeys returns the matching values, not the keys, so the key
	// names are collected in the compare callback instead.
	seen := make(map[string]struct{})
	if _, err := s.db.FilterKeys(func(key []byte) bool {
		if strings.HasPrefix(string(key), prefix) {
			seen[string(key)] = struct{}{}
		}
		return false
	}); err != nil {
		return nil, fmt.Errorf("filter keys with prefix %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		// The callback can surface keys from older levels; only live
		// ones are listed.
		present, err := s.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if present {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the underlying database.
func (s *StarskeyStore) Close() error {
	return s.db.Close()
}
