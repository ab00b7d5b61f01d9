// Package store persists decoded morphologies as snapshots.
//
// A [Snapshot] carries the tree in the JSON snapshot form of pkg/io at full
// float32 precision, together with a summary that listings can show
// without decoding the tree. Implementations:
//   - [MemoryStore]: in-process storage for tests and single-instance servers
//   - [FileStore]: JSON files in a directory, used by the CLI
//   - [MongoStore]: a MongoDB collection for shared deployments
//
// # Usage
//
//	snap, err := store.New(res.Tree, res.Format, res.Warnings, 0)
//	if err != nil {
//	    return err
//	}
//	if err := st.Put(ctx, snap); err != nil {
//	    return err
//	}
//
//	snap, err = st.Get(ctx, id)
//	if errors.Is(err, store.ErrNotFound) {
//	    // unknown or expired
//	}
//	tree, err := snap.Tree()
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	morphio "github.com/matzehuels/morphkit/pkg/io"
	"github.com/matzehuels/morphkit/pkg/morph"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a snapshot does not exist or has expired.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidID is returned for ids that cannot name a snapshot.
	ErrInvalidID = errors.New("invalid snapshot id")
)

// Summary describes a tree without its geometry.
type Summary struct {
	NumPoints   int            `json:"num_points" bson:"num_points"`
	NumLines    int            `json:"num_lines" bson:"num_lines"`
	Types       map[string]int `json:"types,omitempty" bson:"types,omitempty"`
	BoundingBox morph.Box      `json:"bounding_box" bson:"bounding_box"`
	Warnings    int            `json:"warnings" bson:"warnings"`
}

// Snapshot is a stored tree.
type Snapshot struct {
	ID        string          `json:"id" bson:"_id"`
	Name      string          `json:"name" bson:"name"`
	Format    string          `json:"format" bson:"format"`
	Summary   Summary         `json:"summary" bson:"summary"`
	Warnings  []morph.Warning `json:"warnings,omitempty" bson:"warnings,omitempty"`
	Data      json.RawMessage `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// IsExpired reports whether the snapshot has passed its expiry time.
func (s *Snapshot) IsExpired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}

// Tree decodes the stored tree.
func (s *Snapshot) Tree() (*morph.Tree, error) {
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("snapshot %s has no tree data", s.ID)
	}
	return morphio.ReadJSON(bytes.NewReader(s.Data), s.Name)
}

// Store is the interface for snapshot storage backends.
type Store interface {
	// Put stores a snapshot, replacing one with the same id.
	Put(ctx context.Context, s *Snapshot) error

	// Get retrieves a snapshot by id. It returns ErrNotFound for unknown
	// and expired snapshots.
	Get(ctx context.Context, id string) (*Snapshot, error)

	// List returns snapshots newest first, without tree data.
	List(ctx context.Context, opts ListOptions) ([]*Snapshot, error)

	// Delete removes a snapshot. It returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error

	// Close releases the backend.
	Close() error
}

// ListOptions pages through List results.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListLimit applies when ListOptions.Limit is zero.
const DefaultListLimit = 50

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// New creates a snapshot of t with a fresh id. A ttl of zero never
// expires.
func New(t *morph.Tree, format string, warnings []morph.Warning, ttl time.Duration) (*Snapshot, error) {
	var buf bytes.Buffer
	if err := morphio.WriteJSON(t, &buf, morph.FullPrecision); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UTC()
	s := &Snapshot{
		ID:        uuid.NewString(),
		Name:      t.Name,
		Format:    format,
		Summary:   Summarize(t, len(warnings)),
		Warnings:  warnings,
		Data:      buf.Bytes(),
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		s.ExpiresAt = &exp
	}
	return s, nil
}

// Summarize counts the points and lines of t and its lines per type name.
func Summarize(t *morph.Tree, warnings int) Summary {
	s := Summary{
		NumPoints:   t.NumPoints(),
		NumLines:    t.NumLines(),
		BoundingBox: t.BoundingBox,
		Warnings:    warnings,
	}
	for tp, n := range t.TypeCounts() {
		if s.Types == nil {
			s.Types = map[string]int{}
		}
		s.Types[t.TypeName(tp, 0)] += n
	}
	return s
}

// ValidID reports whether id has the form of a snapshot id.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// withoutData returns a shallow copy of s without tree data.
func withoutData(s *Snapshot) *Snapshot {
	c := *s
	c.Data = nil
	return &c
}

// page sorts snapshots newest first and applies opts.
func page(all []*Snapshot, opts ListOptions) []*Snapshot {
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if opts.Offset >= len(all) {
		return nil
	}
	all = all[max(opts.Offset, 0):]
	if n := opts.limit(); len(all) > n {
		all = all[:n]
	}
	return all
}
