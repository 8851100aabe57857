package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
)

const healthPath = "/api/health"

// discoveryPaths are asked for the public tunnel address a backend advertises.
var discoveryPaths = []string{
	"/api/cloudflare-info",
	"/api/connection-info",
}

// healthy requires a 2xx answer whose body reports {"status": "healthy"}.
// A bare 2xx is treated as failure: captive portals and unrelated servers
// answer 200 too.
func (r *Resolver) healthy(ctx context.Context, baseURL string) bool {
	var body struct {
		Status string `json:"status"`
	}
	if !r.getJSON(ctx, strings.TrimRight(baseURL, "/")+healthPath, &body) {
		return false
	}
	return body.Status == "healthy"
}

func (r *Resolver) getJSON(ctx context.Context, url string, out any) bool {
	ctx, cancel := context.WithTimeout(ctx, r.opts.CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if googleapi.CheckResponse(resp) != nil {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

// discoverTunnel asks every fallback base for an advertised public URL.
func (r *Resolver) discoverTunnel(ctx context.Context) (string, bool) {
	type target struct{ base, path string }
	var targets []target
	for _, b := range r.opts.FallbackURLs {
		for _, p := range discoveryPaths {
			targets = append(targets, target{strings.TrimRight(b, "/"), p})
		}
	}
	return firstInOrder(ctx, len(targets), func(ctx context.Context, i int) (string, bool) {
		var info struct {
			PublicURL string `json:"public_url"`
			URL       string `json:"url"`
			Tunnel    struct {
				PublicURL string `json:"public_url"`
			} `json:"cloudflare_tunnel"`
		}
		if !r.getJSON(ctx, targets[i].base+targets[i].path, &info) {
			return "", false
		}
		for _, u := range []string{info.PublicURL, info.URL, info.Tunnel.PublicURL} {
			if u != "" {
				return u, true
			}
		}
		return "", false
	})
}

// firstHealthy checks all candidates at once and returns the highest-priority
// healthy one.
func (r *Resolver) firstHealthy(ctx context.Context, candidates []string) (string, bool) {
	return firstInOrder(ctx, len(candidates), func(ctx context.Context, i int) (string, bool) {
		if r.opts.Check(ctx, candidates[i]) {
			return candidates[i], true
		}
		return "", false
	})
}

// firstInOrder runs fn for 0..n-1 concurrently. It returns the result of the
// lowest index that succeeded, as soon as every lower index has failed, and
// cancels the rest.
func firstInOrder(ctx context.Context, n int, fn func(context.Context, int) (string, bool)) (string, bool) {
	if n == 0 {
		return "", false
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	defer func() {
		cancel()
		g.Wait()
	}()

	type outcome struct {
		i   int
		val string
		ok  bool
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, ok := fn(gctx, i)
			results <- outcome{i, v, ok}
			return nil
		})
	}

	done := make([]bool, n)
	vals := make([]string, n)
	oks := make([]bool, n)
	for received := 0; received < n; received++ {
		o := <-results
		done[o.i], vals[o.i], oks[o.i] = true, o.val, o.ok
		for i := 0; i < n && done[i]; i++ {
			if oks[i] {
				return vals[i], true
			}
		}
	}
	return "", false
}
