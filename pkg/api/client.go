// Package api is the HTTP/JSON client for the family tasks backend. It maps
// the backend's vocabulary onto the model package and classifies failures into
// the error kinds the sync engine reacts to.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// BaseURLFunc returns the backend base URL to use for the next call.
type BaseURLFunc func(ctx context.Context) (string, error)

// StaticBaseURL always returns u.
func StaticBaseURL(u string) BaseURLFunc {
	return func(context.Context) (string, error) { return u, nil }
}

// Client talks to the backend. Authenticated calls carry the session's bearer
// token; a missing token fails them with auth.ErrNoToken before any I/O.
type Client struct {
	baseURL BaseURLFunc
	plain   *http.Client
	authed  *http.Client
	timeout time.Duration
	logger  *log.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport used underneath the auth layer.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.plain = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL BaseURLFunc, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		plain:   &http.Client{},
		timeout: DefaultTimeout,
		logger:  log.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	base := c.plain.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.authed = &http.Client{
		Transport: &oauth2.Transport{Source: tokens, Base: base},
	}
	return c
}

// Query narrows ListTasks. Zero fields are not sent.
type Query struct {
	Type   model.Type
	Status model.Status
	Date   string
}

func (q Query) encode() string {
	v := url.Values{}
	if q.Type != model.TypeAll {
		v.Set("type", string(q.Type))
	}
	if q.Status != "" {
		v.Set("status", wireStatus(q.Status))
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) ListTasks(ctx context.Context, q Query) ([]model.Task, error) {
	var resp struct {
		Success bool       `json:"success"`
		Tasks   []wireTask `json:"tasks"`
		Message string     `json:"message"`
	}
	if err := c.do(ctx, c.authed, "list tasks", http.MethodGet, "/api/tasks"+q.encode(), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "list tasks", Kind: ErrRejected, Message: resp.Message}
	}
	// One malformed entry is dropped so the rest of the list still loads.
	tasks := make([]model.Task, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		t, err := w.toModel()
		if err != nil {
			c.logger.Printf("api: skipping task from list: %v", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask accepts both {"task": {...}} and a bare task body.
func (c *Client) GetTask(ctx context.Context, id int64) (model.Task, error) {
	var raw json.RawMessage
	op := "get task " + strconv.FormatInt(id, 10)
	if err := c.do(ctx, c.authed, op, http.MethodGet, taskPath(id), nil, &raw); err != nil {
		return model.Task{}, err
	}
	var wrapped struct {
		Task *wireTask `json:"task"`
	}
	var w wireTask
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Task != nil {
		w = *wrapped.Task
	} else if err := json.Unmarshal(raw, &w); err != nil {
		return model.Task{}, &Error{Op: op, Kind: ErrRejected, Err: err}
	}
	t, err := w.toModel()
	if err != nil {
		return model.Task{}, &Error{Op: op, Kind: ErrRejected, Err: err}
	}
	return t, nil
}

// CreateTask posts a validated draft and returns the server's task.
func (c *Client) CreateTask(ctx context.Context, d model.Draft) (model.Task, error) {
	var resp struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		TaskID  int64     `json:"task_id"`
		Task    *wireTask `json:"task"`
	}
	if err := c.do(ctx, c.authed, "create task", http.MethodPost, "/api/tasks", fromDraft(d), &resp); err != nil {
		return model.Task{}, err
	}
	if !resp.Success {
		return model.Task{}, &Error{Op: "create task", Kind: ErrRejected, Message: resp.Message}
	}
	if resp.Task == nil {
		if resp.TaskID == 0 {
			return model.Task{}, &Error{Op: "create task", Kind: ErrRejected, Message: "response carried no task"}
		}
		return c.GetTask(ctx, resp.TaskID)
	}
	t, err := resp.Task.toModel()
	if err != nil {
		return model.Task{}, &Error{Op: "create task", Kind: ErrRejected, Err: err}
	}
	return t, nil
}

// Patch is a partial task update. Nil fields are left unchanged.
type Patch struct {
	Status      *model.Status
	Title       *string
	Description *string
}

func (c *Client) UpdateTask(ctx context.Context, id int64, p Patch) error {
	body := patchRequest{Title: p.Title, Description: p.Description}
	if p.Status != nil {
		s := wireStatus(*p.Status)
		body.Status = &s
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	op := "update task " + strconv.FormatInt(id, 10)
	if err := c.do(ctx, c.authed, op, http.MethodPatch, taskPath(id), body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Op: op, Kind: ErrRejected, Message: resp.Message}
	}
	return nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	op := "delete task " + strconv.FormatInt(id, 10)
	if err := c.do(ctx, c.authed, op, http.MethodDelete, taskPath(id), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Op: op, Kind: ErrRejected, Message: resp.Message}
	}
	return nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, login, password, deviceInfo string) (string, auth.User, error) {
	if deviceInfo == "" {
		deviceInfo = "famtasks CLI"
	}
	req := map[string]string{"login": login, "password": password, "device_info": deviceInfo}
	var resp struct {
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Token   string     `json:"token"`
		User    *auth.User `json:"user"`
	}
	if err := c.do(ctx, c.plain, "login", http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return "", auth.User{}, err
	}
	if !resp.Success || resp.Token == "" || resp.User == nil {
		return "", auth.User{}, &Error{Op: "login", Kind: ErrUnauthorized, Message: resp.Message}
	}
	return resp.Token, *resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, c.authed, "logout", http.MethodPost, "/api/auth/logout", struct{}{}, nil)
}

// Validate asks the backend whether the stored token is still accepted.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, c.authed, "validate token", http.MethodGet, "/api/auth/validate", nil, &resp)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, in, out any) error {
	base, err := c.baseURL(ctx)
	if err != nil {
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			return fmt.Errorf("%s: %w", op, auth.ErrNoToken)
		}
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return fromResponse(op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: ErrRejected, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
