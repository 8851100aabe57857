package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LocalhostAuthPort receives the Google OAuth redirect for the calendar mirror.
const LocalhostAuthPort = "6789"

// GoogleConfig reads the Desktop-app client secrets at credentialsPath and
// forces the redirect onto the local callback listener.
func GoogleConfig(credentialsPath string, scopes []string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credentialsPath, err)
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	redirect := fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	if u, err := url.Parse(config.RedirectURL); err == nil && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
		redirect = u.String()
	}
	config.RedirectURL = redirect
	return config, nil
}

// GoogleClient returns an HTTP client authorized for scopes. The token lives
// in the key-value store; without one, interactive runs the browser flow.
func GoogleClient(ctx context.Context, store kv.Store, credentialsPath string, scopes []string, interactive bool, logger *log.Logger) (*http.Client, error) {
	config, err := GoogleConfig(credentialsPath, scopes)
	if err != nil {
		return nil, err
	}

	tok, err := loadGoogleToken(ctx, store)
	if err != nil {
		if !interactive {
			return nil, fmt.Errorf("no calendar authorization stored, run `famtasks calendar auth`: %w", err)
		}
		tok, err = tokenFromWeb(ctx, config, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveGoogleToken(ctx, store, tok); err != nil {
			return nil, err
		}
	}

	src := config.TokenSource(ctx, tok)
	// Persist refreshed tokens so the next run does not refresh again.
	current, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh calendar token: %w", err)
	}
	if current.AccessToken != tok.AccessToken || current.RefreshToken != tok.RefreshToken {
		if err := saveGoogleToken(ctx, store, current); err != nil {
			logger.Printf("Warning: could not save refreshed calendar token: %v", err)
		}
	}
	return oauth2.NewClient(ctx, src), nil
}

// ForgetGoogleToken removes the stored calendar authorization.
func ForgetGoogleToken(ctx context.Context, store kv.Store) error {
	return store.Remove(ctx, kv.KeyGoogleToken)
}

func tokenFromWeb(ctx context.Context, config *oauth2.Config, logger *log.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				errCh <- fmt.Errorf("authorization code not found in redirect URL")
				return
			}
			fmt.Fprintf(w, "Calendar access granted. You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL("famtasks", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL in your browser to authorize calendar access:\n%s\n", authURL)
	logger.Println("Waiting for authorization code...")

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out, please try again")
	}
}

func loadGoogleToken(ctx context.Context, store kv.Store) (*oauth2.Token, error) {
	raw, ok, err := store.Get(ctx, kv.KeyGoogleToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		return nil, fmt.Errorf("failed to decode stored calendar token: %w", err)
	}
	return tok, nil
}

func saveGoogleToken(ctx context.Context, store kv.Store, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, kv.KeyGoogleToken, string(b)); err != nil {
		return fmt.Errorf("unable to cache calendar token: %w", err)
	}
	return nil
}
