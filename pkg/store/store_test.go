package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matzehuels/morphkit/pkg/format/swc"
	"github.com/matzehuels/morphkit/pkg/morph"
)

const neuron = `1 1 0 0 0 5 -1
2 3 1 0 0 1 1
3 3 2.123456 0 0 1 2
4 2 -1 0 0 0.5 1
`

func newSnapshot(t *testing.T, ttl time.Duration) *Snapshot {
	t.Helper()
	res, err := swc.NewDecoder().Decode([]byte(neuron), "n1.swc")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	warnings := []morph.Warning{morph.Warnf(3, "example")}
	s, err := New(res.Tree, res.Format, warnings, ttl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	s := newSnapshot(t, 0)
	if !ValidID(s.ID) {
		t.Errorf("ID = %q, want a uuid", s.ID)
	}
	if s.Name != "n1.swc" || s.Format != "swc" {
		t.Errorf("Name, Format = %q, %q", s.Name, s.Format)
	}
	if s.ExpiresAt != nil || s.IsExpired() {
		t.Error("snapshot without ttl should not expire")
	}

	sum := s.Summary
	if sum.NumPoints != 4 || sum.NumLines != 3 || sum.Warnings != 1 {
		t.Errorf("Summary = %+v", sum)
	}
	if sum.Types["Soma"] != 1 || sum.Types["Axon"] != 1 {
		t.Errorf("Types = %v", sum.Types)
	}

	tr, err := s.Tree()
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if tr.NumLines() != 3 {
		t.Errorf("NumLines = %d, want 3", tr.NumLines())
	}
	// full precision survives
	var found bool
	for id := 1; id <= tr.NumPoints(); id++ {
		if x := tr.Point(id).X; float32(x) == float32(2.123456) {
			found = true
		}
	}
	if !found {
		t.Error("snapshot lost coordinate precision")
	}
}

func TestNewExpiring(t *testing.T) {
	s := newSnapshot(t, time.Hour)
	if s.ExpiresAt == nil || s.IsExpired() {
		t.Errorf("ExpiresAt = %v, want one hour ahead", s.ExpiresAt)
	}
	past := time.Now().Add(-time.Minute)
	s.ExpiresAt = &past
	if !s.IsExpired() {
		t.Error("snapshot in the past should be expired")
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			testStore(t, open(t))
		})
	}
}

func testStore(t *testing.T, st Store) {
	ctx := context.Background()
	defer st.Close()

	if _, err := st.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrNotFound", err)
	}

	a := newSnapshot(t, 0)
	b := newSnapshot(t, 0)
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	expired := newSnapshot(t, time.Hour)
	past := time.Now().Add(-time.Minute)
	expired.ExpiresAt = &past

	for _, s := range []*Snapshot{a, b, expired} {
		if err := st.Put(ctx, s); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := st.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary.NumLines != 3 || len(got.Data) == 0 {
		t.Errorf("Get = %+v", got)
	}
	if _, err := got.Tree(); err != nil {
		t.Errorf("Tree: %v", err)
	}
	if _, err := st.Get(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(expired) = %v, want ErrNotFound", err)
	}

	list, err := st.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("List = %v, want b, a", ids(list))
	}
	if len(list[0].Data) != 0 {
		t.Error("List should not return tree data")
	}
	if list, _ := st.List(ctx, ListOptions{Limit: 1, Offset: 1}); len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("List(limit 1, offset 1) = %v, want a", ids(list))
	}

	if err := st.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete twice = %v, want ErrNotFound", err)
	}
	if _, err := st.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrNotFound", err)
	}
}

func ids(list []*Snapshot) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestFileStoreRejectsPaths(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s := newSnapshot(t, 0)
	s.ID = "../escape"
	if err := st.Put(context.Background(), s); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Put(../escape) = %v, want ErrInvalidID", err)
	}
	if _, err := st.Get(context.Background(), "../escape"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(../escape) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := newSnapshot(t, time.Hour)
	past := time.Now().Add(-time.Minute)
	s.ExpiresAt = &past
	if err := st.Put(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := st.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete after Cleanup = %v, want ErrNotFound", err)
	}
}

func TestNewMongoStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := NewMongoStore(ctx, MongoConfig{}); err == nil {
		t.Error("NewMongoStore without uri should fail")
	}
	_, err := NewMongoStore(ctx, MongoConfig{URI: "mongodb://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	if err == nil {
		t.Error("NewMongoStore with unreachable server should fail")
	}
}
