package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client provides typed access to the to-do API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	session   Session
	onRefresh func(Session)
}

// Session holds the tokens used for authenticated calls.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithSession starts the client with previously issued tokens.
func WithSession(s Session) Option {
	return func(c *Client) {
		c.session = s
	}
}

// OnRefresh registers fn to be called whenever the access token is renewed.
func OnRefresh(fn func(Session)) Option {
	return func(c *Client) {
		c.onRefresh = fn
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:3000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Session returns the current tokens.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	fn := c.onRefresh
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doAuthed sends an authenticated request. A 401 triggers one refresh with
// the session's refresh token followed by a single retry.
func (c *Client) doAuthed(ctx context.Context, method, path string, body any, v any) error {
	session := c.Session()
	err := c.do(ctx, method, path, body, session.AccessToken, v)
	if !IsStatus(err, http.StatusUnauthorized) || session.RefreshToken == "" {
		return err
	}
	if _, refreshErr := c.Refresh(ctx); refreshErr != nil {
		return err
	}
	return c.do(ctx, method, path, body, c.Session().AccessToken, v)
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

type messageResponse struct {
	Message string `json:"message"`
}

// User reflects API user payloads.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Permission []string  `json:"permission"`
	Todos      []int64   `json:"todos"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Todo reflects API to-do payloads.
type Todo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsDone    bool      `json:"isDone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Login exchanges credentials for a token pair and keeps it as the session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return Session{}, err
	}
	c.setSession(resp)
	return resp, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, name, email, password string) (User, error) {
	body := map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}
	var user User
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, "", &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Refresh redeems the session's refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	session := c.Session()
	if session.RefreshToken == "" {
		return "", errors.New("no refresh token in session")
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	body := map[string]string{"refreshToken": session.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, "", &resp); err != nil {
		return "", err
	}
	session.AccessToken = resp.AccessToken
	c.setSession(session)
	return resp.AccessToken, nil
}

// Logout revokes the session's refresh token and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	session := c.Session()
	if session.RefreshToken != "" {
		body := map[string]string{"refreshToken": session.RefreshToken}
		if err := c.do(ctx, http.MethodPost, "/auth/logout", body, "", nil); err != nil {
			return err
		}
	}
	c.setSession(Session{})
	return nil
}

// ListTodos returns the caller's to-dos.
func (c *Client) ListTodos(ctx context.Context) ([]Todo, error) {
	var todos []Todo
	if err := c.doAuthed(ctx, http.MethodGet, "/todos", nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// AddTodo creates a to-do.
func (c *Client) AddTodo(ctx context.Context, name string, isDone bool) (Todo, error) {
	body := map[string]any{"name": name, "isDone": isDone}
	var todo Todo
	if err := c.doAuthed(ctx, http.MethodPost, "/todos/addTodos", body, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// TodoUpdate carries the fields to change. Nil fields are left as they are.
type TodoUpdate struct {
	Name   *string `json:"name,omitempty"`
	IsDone *bool   `json:"isDone,omitempty"`
}

// UpdateTodo changes a to-do owned by the caller.
func (c *Client) UpdateTodo(ctx context.Context, id int64, input TodoUpdate) (Todo, error) {
	path := "/todos/updateTodos/" + strconv.FormatInt(id, 10)
	var todo Todo
	if err := c.doAuthed(ctx, http.MethodPut, path, input, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// DeleteTodo removes a to-do owned by the caller and returns the confirmation.
func (c *Client) DeleteTodo(ctx context.Context, id int64) (string, error) {
	path := "/todos/deleteTodos/" + strconv.FormatInt(id, 10)
	var resp messageResponse
	if err := c.doAuthed(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// UserQuery filters ListUsers. Zero fields use the server defaults.
type UserQuery struct {
	Q    string
	Page int
	Size int
}

// ListUsers returns users matching query. Requires the super admin role.
func (c *Client) ListUsers(ctx context.Context, query UserQuery) ([]User, error) {
	values := url.Values{}
	if q := strings.TrimSpace(query.Q); q != "" {
		values.Set("q", q)
	}
	if query.Page > 0 {
		values.Set("page", strconv.Itoa(query.Page))
	}
	if query.Size > 0 {
		values.Set("size", strconv.Itoa(query.Size))
	}
	path := "/users"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var users []User
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a single user.
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	if err := c.doAuthed(ctx, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser provisions a user with the default role.
func (c *Client) CreateUser(ctx context.Context, name, email, password string) (User, error) {
	body := map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}
	var user User
	if err := c.doAuthed(ctx, http.MethodPost, "/users", body, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UserUpdate carries the fields to change. Nil fields are left as they are.
type UserUpdate struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UpdateUser changes a user's email and/or password.
func (c *Client) UpdateUser(ctx context.Context, id int64, input UserUpdate) (User, error) {
	var user User
	if err := c.doAuthed(ctx, http.MethodPut, "/users/"+strconv.FormatInt(id, 10), input, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes a user. Their to-dos are kept.
func (c *Client) DeleteUser(ctx context.Context, id int64) (string, error) {
	var resp messageResponse
	if err := c.doAuthed(ctx, http.MethodDelete, "/users/"+strconv.FormatInt(id, 10), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}
