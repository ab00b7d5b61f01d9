package cache

// ScopedKeyer wraps a Keyer with a prefix so that several deployments or
// tenants can share one backend without seeing each other's entries.
//
// Example usage:
//
//	// Entries of the staging API
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for fetched remote resources.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// TreeKey generates a prefixed key for decoded trees.
func (k *ScopedKeyer) TreeKey(contentHash string, opts TreeKeyOpts) string {
	return k.prefix + k.inner.TreeKey(contentHash, opts)
}

// ArtifactKey generates a prefixed key for rendered outputs.
func (k *ScopedKeyer) ArtifactKey(treeKey string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(treeKey, opts)
}
