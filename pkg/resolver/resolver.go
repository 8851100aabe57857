// Package resolver finds a reachable backend base URL without user setup:
// a fresh cached address, then the tunnel, then addresses advertised by local
// backends, then the well-known fallbacks, and finally a default.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"golang.org/x/sync/singleflight"
)

// APIConfig is what gets persisted under kv.KeyAPIConfig.
type APIConfig struct {
	APIURL      string `json:"apiUrl"`
	IsTunnel    bool   `json:"isTunnel"`
	Discovered  bool   `json:"isDiscovered"`
	LastUpdated int64  `json:"lastUpdated"` // unix milliseconds
}

func (c APIConfig) Updated() time.Time {
	return time.UnixMilli(c.LastUpdated)
}

type Source string

const (
	SourceCache      Source = "cache"
	SourceTunnel     Source = "tunnel"
	SourceDiscovered Source = "discovered"
	SourceFallback   Source = "fallback"
	SourceDefault    Source = "default"
)

type Result struct {
	URL    string
	Source Source
	// Resolved is false when no candidate answered and URL is the default.
	Resolved bool
}

// CheckFunc reports whether baseURL is a healthy backend.
type CheckFunc func(ctx context.Context, baseURL string) bool

type Options struct {
	TunnelURL    string
	FallbackURLs []string
	DefaultURL   string
	CheckTimeout time.Duration
	Freshness    time.Duration
	HTTPClient   *http.Client
	Logger       *log.Logger
	// Check replaces the health check, mostly for tests.
	Check CheckFunc
	Now   func() time.Time
}

// retryUnresolved is how long Current keeps returning the default URL before
// trying to resolve again.
const retryUnresolved = 30 * time.Second

type Resolver struct {
	store kv.Store
	opts  Options
	group singleflight.Group

	mu         sync.Mutex
	current    Result
	resolvedAt time.Time
}

func New(store kv.Store, opts Options) *Resolver {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 3 * time.Second
	}
	if opts.Freshness <= 0 {
		opts.Freshness = 24 * time.Hour
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Resolver{store: store, opts: opts}
	if r.opts.Check == nil {
		r.opts.Check = r.healthy
	}
	return r
}

// Resolve runs the full priority order. Concurrent callers share one run.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	v, err, _ := r.group.Do("resolve", func() (interface{}, error) {
		res, err := r.resolve(ctx)
		if err != nil {
			return Result{}, err
		}
		r.mu.Lock()
		r.current = res
		r.resolvedAt = r.opts.Now()
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Resolver) resolve(ctx context.Context) (Result, error) {
	if cfg, ok, err := r.Saved(ctx); err != nil {
		r.opts.Logger.Printf("resolver: ignoring unreadable api config: %v", err)
	} else if ok && r.opts.Now().Sub(cfg.Updated()) < r.opts.Freshness {
		if r.opts.Check(ctx, cfg.APIURL) {
			r.opts.Logger.Printf("resolver: using saved URL %s", cfg.APIURL)
			return Result{URL: cfg.APIURL, Source: SourceCache, Resolved: true}, nil
		}
		r.opts.Logger.Printf("resolver: saved URL %s is not healthy", cfg.APIURL)
	}

	if t := r.opts.TunnelURL; t != "" {
		if r.opts.Check(ctx, t) {
			return r.accept(ctx, t, SourceTunnel)
		}
		r.opts.Logger.Printf("resolver: tunnel %s is not healthy", t)
	}

	if u, ok := r.discoverTunnel(ctx); ok && r.opts.Check(ctx, u) {
		return r.accept(ctx, u, SourceDiscovered)
	}

	if u, ok := r.firstHealthy(ctx, r.opts.FallbackURLs); ok {
		return r.accept(ctx, u, SourceFallback)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.opts.Logger.Printf("resolver: no backend answered, falling back to %s", r.opts.DefaultURL)
	return Result{URL: r.opts.DefaultURL, Source: SourceDefault}, nil
}

func (r *Resolver) accept(ctx context.Context, u string, src Source) (Result, error) {
	r.opts.Logger.Printf("resolver: connected to %s (%s)", u, src)
	if err := r.Persist(ctx, APIConfig{APIURL: u, IsTunnel: src == SourceTunnel || src == SourceDiscovered, Discovered: src == SourceDiscovered}); err != nil {
		r.opts.Logger.Printf("resolver: could not save api config: %v", err)
	}
	return Result{URL: u, Source: src, Resolved: true}, nil
}

// Persist stores cfg stamped with the current time; later Resolve calls use
// it until it goes stale or is invalidated.
func (r *Resolver) Persist(ctx context.Context, cfg APIConfig) error {
	cfg.LastUpdated = r.opts.Now().UnixMilli()
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, kv.KeyAPIConfig, string(b)); err != nil {
		return fmt.Errorf("save api config: %w", err)
	}
	return nil
}

// Invalidate forgets the persisted and in-memory URL.
func (r *Resolver) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	r.current = Result{}
	r.resolvedAt = time.Time{}
	r.mu.Unlock()
	return r.store.Remove(ctx, kv.KeyAPIConfig)
}

// Saved returns the persisted config, if any.
func (r *Resolver) Saved(ctx context.Context) (APIConfig, bool, error) {
	raw, ok, err := r.store.Get(ctx, kv.KeyAPIConfig)
	if err != nil || !ok {
		return APIConfig{}, false, err
	}
	var cfg APIConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return APIConfig{}, false, fmt.Errorf("failed to decode api config: %w", err)
	}
	if cfg.APIURL == "" {
		return APIConfig{}, false, nil
	}
	return cfg, true, nil
}

// Current returns the URL to use for a request, resolving when nothing is
// known yet, when the last result went stale, or when the last attempt only
// produced the default.
func (r *Resolver) Current(ctx context.Context) (string, error) {
	r.mu.Lock()
	cur, at := r.current, r.resolvedAt
	r.mu.Unlock()

	age := r.opts.Now().Sub(at)
	switch {
	case cur.URL == "":
	case cur.Resolved && age < r.opts.Freshness:
		return cur.URL, nil
	case !cur.Resolved && age < retryUnresolved:
		return cur.URL, nil
	}

	res, err := r.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return res.URL, nil
}
