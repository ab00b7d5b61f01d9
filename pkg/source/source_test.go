package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/morphkit/pkg/cache"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

const neuron = "1 1 0 0 0 5 -1\n2 3 1 0 0 1 1\n"

func TestScheme(t *testing.T) {
	tests := []struct {
		ref, want string
	}{
		{"cells/n1.swc", ""},
		{"/abs/n1.swc", ""},
		{"file:///tmp/n1.swc", "file"},
		{"HTTPS://example.org/n1.swc", "https"},
		{"s3://bucket/n1.swc", "s3"},
		{"://broken", ""},
	}
	for _, tt := range tests {
		if got := Scheme(tt.ref); got != tt.want {
			t.Errorf("Scheme(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		ref, want string
	}{
		{"https://example.org/cells/n1.swc?raw=1", "n1.swc"},
		{"s3://bucket/a/b/c.asc", "c.asc"},
		{"cells/n1.swc#frag", "n1.swc"},
		{"n1.swc", "n1.swc"},
	}
	for _, tt := range tests {
		if got := baseName(tt.ref); got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "n1.swc")
	if err := os.WriteFile(path, []byte(neuron), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, ref := range []string{path, "file://" + path} {
		b, err := LocalSource{}.Fetch(ctx, ref)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", ref, err)
		}
		if b.Name != "n1.swc" || string(b.Data) != neuron {
			t.Errorf("Fetch(%s) = %q, %q", ref, b.Name, b.Data)
		}
	}

	_, err := LocalSource{}.Fetch(ctx, filepath.Join(dir, "missing.swc"))
	if !perrors.Is(err, perrors.ErrCodeFileNotFound) {
		t.Errorf("Fetch(missing) = %v, want FILE_NOT_FOUND", err)
	}
	_, err = LocalSource{}.Fetch(ctx, dir)
	if !perrors.Is(err, perrors.ErrCodeInvalidPath) {
		t.Errorf("Fetch(dir) = %v, want INVALID_PATH", err)
	}
	_, err = LocalSource{MaxBytes: 4}.Fetch(ctx, path)
	if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("Fetch(oversized) = %v, want INVALID_INPUT", err)
	}
}

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.swc", "sub/b.asc", "notes.txt", ".git/c.swc"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Walk(dir, func(name string) bool {
		return !strings.HasSuffix(name, ".txt")
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{filepath.Join(dir, "a.swc"), filepath.Join(dir, "sub", "b.asc")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Walk = %v, want %v", got, want)
	}

	if _, err := Walk(filepath.Join(dir, "nope"), nil); !perrors.Is(err, perrors.ErrCodeFileNotFound) {
		t.Errorf("Walk(missing) = %v, want FILE_NOT_FOUND", err)
	}
}

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/cells/n1.swc":
			if r.Header.Get("X-Token") != "secret" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			io.WriteString(w, neuron)
		case "/forbidden.swc":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	ctx := context.Background()

	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := NewHTTPSource(c, nil, map[string]string{"X-Token": "secret"}).WithClient(srv.Client())

	ref := srv.URL + "/cells/n1.swc"
	if !h.Supports(ref) || h.Supports("cells/n1.swc") {
		t.Error("Supports should accept http urls only")
	}

	b, err := h.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if b.Name != "n1.swc" || string(b.Data) != neuron || b.Cached {
		t.Errorf("Fetch = %+v", b)
	}

	b, err = h.Fetch(ctx, ref)
	if err != nil || !b.Cached {
		t.Errorf("second Fetch cached = %v, %v, want hit", b != nil && b.Cached, err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}

	h.Refresh = true
	if _, err := h.Fetch(ctx, ref); err != nil {
		t.Fatalf("Fetch(refresh): %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hits after refresh = %d, want 2", n)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	h := NewHTTPSource(nil, nil, nil).WithClient(srv.Client())
	ctx := context.Background()

	tests := []struct {
		path string
		code perrors.Code
	}{
		{"/missing.swc", perrors.ErrCodeNotFound},
		{"/forbidden.swc", perrors.ErrCodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := hits.Load()
			_, err := h.Fetch(ctx, srv.URL+tt.path)
			if got := perrors.GetCode(err); got != tt.code {
				t.Errorf("Fetch code = %q, want %q (%v)", got, tt.code, err)
			}
			if n := hits.Load() - before; n != 1 {
				t.Errorf("attempts = %d, want 1", n)
			}
		})
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
		ok        bool
	}{
		{200, false, true},
		{404, false, false},
		{403, false, false},
		{429, true, false},
		{503, true, false},
	}
	for _, tt := range tests {
		err := checkStatus(tt.code)
		if (err == nil) != tt.ok {
			t.Errorf("checkStatus(%d) = %v", tt.code, err)
		}
		if cache.IsRetryable(err) != tt.retryable {
			t.Errorf("checkStatus(%d) retryable = %v, want %v", tt.code, !tt.retryable, tt.retryable)
		}
	}
}

func TestParseS3(t *testing.T) {
	tests := []struct {
		ref         string
		bucket, key string
		ok          bool
	}{
		{"s3://cells/a/n1.swc", "cells", "a/n1.swc", true},
		{"s3://cells", "", "", false},
		{"s3:///n1.swc", "", "", false},
		{"https://cells/n1.swc", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3(tt.ref)
		if (err == nil) != tt.ok {
			t.Errorf("ParseS3(%q) err = %v", tt.ref, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3(%q) = %q, %q, want %q, %q", tt.ref, bucket, key, tt.bucket, tt.key)
		}
	}
}

// fakeS3 serves path-style GetObject requests from a map of bucket/key.
type fakeS3 map[string][]byte

func (f fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	body, ok := f[strings.TrimPrefix(req.URL.Path, "/")]
	if req.Method != http.MethodGet || !ok {
		msg := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": {"application/xml"}},
			Body:       io.NopCloser(strings.NewReader(msg)),
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Type": {"application/octet-stream"}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Request:       req,
	}, nil
}

func TestS3Source(t *testing.T) {
	ctx := context.Background()
	s, err := NewS3Source(ctx, S3Config{
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fakeS3{"cells/a/n1.swc": []byte(neuron)}},
	})
	if err != nil {
		t.Fatalf("NewS3Source: %v", err)
	}

	b, err := s.Fetch(ctx, "s3://cells/a/n1.swc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if b.Name != "n1.swc" || string(b.Data) != neuron {
		t.Errorf("Fetch = %q, %q", b.Name, b.Data)
	}

	_, err = s.Fetch(ctx, "s3://cells/missing.swc")
	if !perrors.Is(err, perrors.ErrCodeNotFound) {
		t.Errorf("Fetch(missing) = %v, want NOT_FOUND", err)
	}
}

func TestResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "n1.swc")
	if err := os.WriteFile(path, []byte(neuron), 0644); err != nil {
		t.Fatal(err)
	}
	var hits atomic.Int32
	srv := newServer(t, &hits)
	r := NewResolver(NewHTTPSource(nil, nil, map[string]string{"X-Token": "secret"}).WithClient(srv.Client()))
	ctx := context.Background()

	for _, ref := range []string{path, srv.URL + "/cells/n1.swc"} {
		b, err := r.Fetch(ctx, ref)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", ref, err)
		}
		if string(b.Data) != neuron {
			t.Errorf("Fetch(%s) = %q", ref, b.Data)
		}
	}

	if _, err := r.Fetch(ctx, ""); !perrors.Is(err, perrors.ErrCodeInvalidInput) {
		t.Errorf("Fetch(empty) = %v, want INVALID_INPUT", err)
	}
	if _, err := r.Fetch(ctx, "s3://cells/n1.swc"); !perrors.Is(err, perrors.ErrCodeUnsupported) {
		t.Errorf("Fetch(s3 without source) = %v, want UNSUPPORTED", err)
	}
}
