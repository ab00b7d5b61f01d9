// Package source fetches morphology files from local paths, HTTP URLs and
// S3 buckets.
//
// A [Source] resolves one kind of reference to a [Blob]. [Resolver] picks
// the source by the reference's scheme:
//
//	s3://bucket/key        -> [S3Source]
//	http:// and https://   -> [HTTPSource]
//	anything else          -> [LocalSource]
//
// Remote sources retry transient failures with backoff and may cache the
// fetched bytes under [cache.Keyer.HTTPKey].
package source

import (
	"context"
	"io"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

// DefaultMaxBytes caps the size of a fetched file.
const DefaultMaxBytes = 256 << 20

// Blob is a fetched file.
type Blob struct {
	// Name is the file's base name, used for format detection.
	Name string
	// Ref is the reference the blob was fetched from.
	Ref  string
	Data []byte
	// Cached reports whether the bytes came from the cache.
	Cached bool
}

// Source fetches files for the references it supports.
type Source interface {
	Supports(ref string) bool
	Fetch(ctx context.Context, ref string) (*Blob, error)
}

// Resolver dispatches references to the first source that supports them.
type Resolver struct {
	sources []Source
}

// NewResolver returns a Resolver trying sources in order. A [LocalSource]
// is always appended as the fallback.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: append(sources, LocalSource{})}
}

// Fetch resolves ref with the first matching source.
func (r *Resolver) Fetch(ctx context.Context, ref string) (*Blob, error) {
	if ref == "" {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "empty reference")
	}
	for _, s := range r.sources {
		if s.Supports(ref) {
			return s.Fetch(ctx, ref)
		}
	}
	return nil, perrors.New(perrors.ErrCodeUnsupported, "no source for %s", ref)
}

// Scheme returns the lowercased scheme of ref, or "" for plain paths.
func Scheme(ref string) string {
	i := strings.Index(ref, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(ref[:i])
}

// baseName returns the last path element of a slash-separated reference,
// ignoring any query or fragment.
func baseName(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// readLimited reads r up to max bytes.
func readLimited(r io.Reader, max int64, ref string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "%s exceeds %d bytes", ref, max)
	}
	return data, nil
}

func limitOr(n int64) int64 {
	if n <= 0 {
		return DefaultMaxBytes
	}
	return n
}

func wrapf(code perrors.Code, err error, format string, args ...any) error {
	if perrors.GetCode(err) != "" {
		return err
	}
	return perrors.Wrap(code, err, format, args...)
}
