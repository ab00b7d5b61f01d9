// Package cache stores decoded trees, rendered artifacts and fetched source
// bytes under content-derived keys.
//
// Three backends implement [Cache]: [FileCache] for the CLI, [RedisCache]
// for servers sharing a cache, and [NullCache] when caching is disabled.
// A [Keyer] derives the keys so that every entry depends on exactly the
// inputs that produced it.
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with per-entry expiration. Implementations are safe
// for concurrent use.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// Clearer is implemented by caches that can drop all their entries.
type Clearer interface {
	// Clear removes every entry and reports how many were removed.
	Clear(ctx context.Context) (int, error)
}

// Default lifetimes.
const (
	// TTLTree covers decoded trees. Decoding is deterministic, so entries
	// only expire to bound the cache size.
	TTLTree = 7 * 24 * time.Hour

	// TTLArtifact covers rendered outputs.
	TTLArtifact = 7 * 24 * time.Hour

	// TTLHTTP covers bytes fetched from remote sources.
	TTLHTTP = 24 * time.Hour
)

// TreeKeyOpts lists the decode settings that change a decoded tree.
type TreeKeyOpts struct {
	Format    string `json:"format"`
	Canonical bool   `json:"canonical"`
	// SRS and Transform select a spatial registration applied after
	// decoding.
	SRS       string `json:"srs,omitempty"`
	Transform string `json:"transform,omitempty"`
}

// ArtifactKeyOpts lists the settings that change a rendered output.
type ArtifactKeyOpts struct {
	Output   string `json:"output"`
	Decimals int    `json:"decimals"`
	Detailed bool   `json:"detailed,omitempty"`
	MaxLines int    `json:"max_lines,omitempty"`
	CellID   string `json:"cell_id,omitempty"`
}

// Keyer derives cache keys.
type Keyer interface {
	// HTTPKey returns the key for a fetched remote resource.
	HTTPKey(namespace, key string) string
	// TreeKey returns the key for the tree decoded from content with the
	// given hash.
	TreeKey(contentHash string, opts TreeKeyOpts) string
	// ArtifactKey returns the key for an output rendered from the tree
	// stored under treeKey.
	ArtifactKey(treeKey string, opts ArtifactKeyOpts) string
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// TreeKey hashes the content hash together with the decode settings.
func (DefaultKeyer) TreeKey(contentHash string, opts TreeKeyOpts) string {
	return hashKey("tree", contentHash, opts)
}

// ArtifactKey hashes the tree key together with the render settings.
func (DefaultKeyer) ArtifactKey(treeKey string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", treeKey, opts)
}

var _ Keyer = DefaultKeyer{}
