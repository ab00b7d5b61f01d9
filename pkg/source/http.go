package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/matzehuels/morphkit/pkg/cache"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/observability"
)

const (
	httpTimeout = 30 * time.Second
	userAgent   = "morphkit (+https://github.com/matzehuels/morphkit)"
)

// HTTPSource fetches files over HTTP(S).
type HTTPSource struct {
	client  *http.Client
	cache   cache.Cache
	keyer   cache.Keyer
	headers map[string]string

	// TTL for cached responses. Zero selects cache.TTLHTTP.
	TTL time.Duration
	// Refresh bypasses cached responses.
	Refresh bool
	// MaxBytes caps the response size. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

// NewHTTPSource returns an HTTPSource. A nil cache disables caching and a
// nil keyer selects the default keys. Headers apply to every request.
func NewHTTPSource(c cache.Cache, keyer cache.Keyer, headers map[string]string) *HTTPSource {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: httpTimeout},
		cache:   c,
		keyer:   keyer,
		headers: headers,
	}
}

// WithClient replaces the HTTP client.
func (h *HTTPSource) WithClient(c *http.Client) *HTTPSource {
	h.client = c
	return h
}

func (*HTTPSource) Supports(ref string) bool {
	s := Scheme(ref)
	return s == "http" || s == "https"
}

// Fetch downloads ref, serving it from the cache when possible.
func (h *HTTPSource) Fetch(ctx context.Context, ref string) (*Blob, error) {
	key := h.keyer.HTTPKey("url", ref)
	if !h.Refresh {
		if data, ok, _ := h.cache.Get(ctx, key); ok {
			return &Blob{Name: baseName(ref), Ref: ref, Data: data, Cached: true}, nil
		}
	}

	var data []byte
	err := cache.RetryWithBackoff(ctx, func() error {
		var err error
		data, err = h.get(ctx, ref)
		return err
	})
	if err != nil {
		return nil, h.classify(err, ref)
	}

	ttl := h.TTL
	if ttl == 0 {
		ttl = cache.TTLHTTP
	}
	_ = h.cache.Set(ctx, key, data, ttl)
	return &Blob{Name: baseName(ref), Ref: ref, Data: data}, nil
}

func (h *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "invalid url %s", url)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := readLimited(resp.Body, limitOr(h.MaxBytes), url)
	if err != nil {
		if perrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}
	return body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return cache.ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}

// classify maps fetch failures onto error codes.
func (h *HTTPSource) classify(err error, ref string) error {
	switch {
	case perrors.GetCode(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return perrors.Wrap(perrors.ErrCodeTimeout, err, "fetch %s", ref)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, cache.ErrNotFound):
		return perrors.Wrap(perrors.ErrCodeNotFound, err, "fetch %s", ref)
	default:
		return perrors.Wrap(perrors.ErrCodeNetwork, err, "fetch %s", ref)
	}
}

var _ Source = (*HTTPSource)(nil)

