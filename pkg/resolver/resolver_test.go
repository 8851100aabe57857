package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkRecorder struct {
	mu      sync.Mutex
	calls   []string
	healthy map[string]bool
	delay   map[string]time.Duration
}

func (p *checkRecorder) check(ctx context.Context, u string) bool {
	p.mu.Lock()
	p.calls = append(p.calls, u)
	d := p.delay[u]
	ok := p.healthy[u]
	p.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return false
		}
	}
	return ok
}

func (p *checkRecorder) called() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

var quiet = log.New(io.Discard, "", 0)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// offline fails every request so tunnel discovery finds nothing.
var offline = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
	return nil, errors.New("offline")
})}

func saveConfig(t *testing.T, store kv.Store, cfg APIConfig) {
	t.Helper()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), kv.KeyAPIConfig, string(b)))
}

func TestResolve_FreshCacheSkipsFallbacks(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemory()
	saveConfig(t, store, APIConfig{APIURL: "http://cached:8080", LastUpdated: now.Add(-time.Hour).UnixMilli()})

	p := &checkRecorder{healthy: map[string]bool{"http://cached:8080": true, "http://localhost:8080": true}}
	r := New(store, Options{
		TunnelURL:    "https://tunnel.example.com",
		FallbackURLs: []string{"http://localhost:8080", "http://10.0.2.2:8080"},
		Check:        p.check,
		Logger:       quiet,
		HTTPClient:   offline,
		Now:          func() time.Time { return now },
	})

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{URL: "http://cached:8080", Source: SourceCache, Resolved: true}, res)
	assert.Equal(t, []string{"http://cached:8080"}, p.called())
}

func TestResolve_StaleCacheIsNotTrusted(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemory()
	saveConfig(t, store, APIConfig{APIURL: "http://cached:8080", LastUpdated: now.Add(-25 * time.Hour).UnixMilli()})

	p := &checkRecorder{healthy: map[string]bool{"http://cached:8080": true, "http://10.0.2.2:8080": true}}
	r := New(store, Options{
		FallbackURLs: []string{"http://localhost:8080", "http://10.0.2.2:8080"},
		Check:        p.check,
		Logger:       quiet,
		HTTPClient:   offline,
		Now:          func() time.Time { return now },
	})

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.2.2:8080", res.URL)
	assert.Equal(t, SourceFallback, res.Source)
	assert.NotContains(t, p.called(), "http://cached:8080")

	saved, ok, err := r.Saved(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://10.0.2.2:8080", saved.APIURL)
	assert.Equal(t, now.UnixMilli(), saved.LastUpdated)
}

func TestResolve_TunnelBeforeFallbacks(t *testing.T) {
	p := &checkRecorder{healthy: map[string]bool{"https://tunnel.example.com": true, "http://localhost:8080": true}}
	store := kv.NewMemory()
	r := New(store, Options{
		TunnelURL:    "https://tunnel.example.com",
		FallbackURLs: []string{"http://localhost:8080"},
		Check:        p.check,
		Logger:       quiet,
		HTTPClient:   offline,
	})

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceTunnel, res.Source)

	saved, ok, err := r.Saved(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.IsTunnel)
}

func TestResolve_ConcurrentChecksKeepPriority(t *testing.T) {
	p := &checkRecorder{
		healthy: map[string]bool{"http://a": true, "http://b": true},
		delay:   map[string]time.Duration{"http://a": 50 * time.Millisecond},
	}
	r := New(kv.NewMemory(), Options{
		FallbackURLs: []string{"http://a", "http://b", "http://c"},
		Check:        p.check,
		Logger:       quiet,
		HTTPClient:   offline,
	})

	start := time.Now()
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://a", res.URL)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_NothingAnswers(t *testing.T) {
	p := &checkRecorder{}
	store := kv.NewMemory()
	r := New(store, Options{
		FallbackURLs: []string{"http://a", "http://b"},
		DefaultURL:   "http://default:8080",
		Check:        p.check,
		Logger:       quiet,
		HTTPClient:   offline,
	})

	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{URL: "http://default:8080", Source: SourceDefault}, res)

	_, ok, err := r.Saved(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateAndCurrent(t *testing.T) {
	p := &checkRecorder{healthy: map[string]bool{"http://a": true}}
	store := kv.NewMemory()
	r := New(store, Options{FallbackURLs: []string{"http://a"}, Check: p.check, Logger: quiet, HTTPClient: offline})
	ctx := context.Background()

	u, err := r.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a", u)

	u, err = r.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a", u)
	assert.Len(t, p.called(), 1, "second Current must not check again")

	require.NoError(t, r.Invalidate(ctx))
	_, ok, err := r.Saved(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Current(ctx)
	require.NoError(t, err)
	assert.Len(t, p.called(), 2)
}

func TestHealthCheckRequiresHealthyBody(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, healthPath, r.URL.Path)
		io.WriteString(w, `{"status": "healthy"}`)
	}))
	defer healthy.Close()
	bare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>welcome to the hotel wifi</html>`)
	}))
	defer bare.Close()
	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"status": "healthy"}`)
	}))
	defer degraded.Close()

	r := New(kv.NewMemory(), Options{CheckTimeout: time.Second, Logger: quiet})
	ctx := context.Background()
	assert.True(t, r.healthy(ctx, healthy.URL))
	assert.False(t, r.healthy(ctx, bare.URL))
	assert.False(t, r.healthy(ctx, degraded.URL))
}

func TestResolve_DiscoversAdvertisedTunnel(t *testing.T) {
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status": "healthy"}`)
	}))
	defer public.Close()

	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cloudflare-info":
			json.NewEncoder(w).Encode(map[string]any{"is_cloudflare": true, "public_url": public.URL})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer local.Close()

	r := New(kv.NewMemory(), Options{
		FallbackURLs: []string{local.URL},
		CheckTimeout: time.Second,
		Logger:       quiet,
	})
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, public.URL, res.URL)
	assert.Equal(t, SourceDiscovered, res.Source)
}
