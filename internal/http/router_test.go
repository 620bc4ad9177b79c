package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/splax/todos/internal/domain"
	"github.com/splax/todos/internal/repository/memory"
	"github.com/splax/todos/internal/service/auth"
	"github.com/splax/todos/internal/service/todo"
	"github.com/splax/todos/internal/service/user"
	"github.com/splax/todos/pkg/config"
)

type testEnv struct {
	router  *Router
	store   *memory.Store
	authSvc auth.Service
	userSvc user.Service
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, mutate func(*config.APIConfig)) *testEnv {
	t.Helper()
	cfg := config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  50 * time.Second,
		RefreshTokenTTL: 200 * time.Second,
		BcryptCost:      bcrypt.MinCost,
		CookieSecure:    true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	log := testLogger()
	store := memory.NewStore()
	tokens := memory.NewRefreshTokens(100, cfg.RefreshTokenTTL)
	authSvc := auth.New(store, tokens, log, cfg)
	userSvc := user.New(store, log, cfg)
	todoSvc := todo.New(store, log)

	if _, err := userSvc.SeedAdmin(context.Background(), "admin", "admin@x.com", "secret1"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	router := NewRouter(log, authSvc, userSvc, todoSvc, NewMemoryRateLimiter(), cfg, store.Ping)
	t.Cleanup(router.Close)
	return &testEnv{router: router, store: store, authSvc: authSvc, userSvc: userSvc}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return tokens.AccessToken
}

func (e *testEnv) signup(t *testing.T, name, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", `{"name":"`+name+`","email":"`+email+`","password":"secret1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d: %s", email, rec.Code, rec.Body.String())
	}
	return e.login(t, email, "secret1")
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != msg {
		t.Fatalf("expected error %q, got %q", msg, body["error"])
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com","password":"secret1"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", tokens)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "refreshToken" || c.Value != tokens.RefreshToken {
		t.Fatalf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie flags not set: %+v", c)
	}
	if c.MaxAge != 200 {
		t.Fatalf("expected max-age 200, got %d", c.MaxAge)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodPost, "/auth/login", `{"email":"nobody@x.com","password":"secret1"}`, ""), http.StatusNotFound, "No Matching Email")
	expectError(t, env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com","password":"wrong"}`, ""), http.StatusUnauthorized, "Passwords Don't Match")
	expectError(t, env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com"}`, ""), http.StatusBadRequest, `"password" is required`)
	expectError(t, env.do(t, http.MethodGet, "/auth/login", "", ""), http.StatusMethodNotAllowed, "method not allowed")
}

func TestTodoLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "alice", "alice@x.com")

	expectError(t, env.do(t, http.MethodGet, "/todos", "", token), http.StatusNotFound, "Todos Not Found")

	rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk","isDone":false}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode todo: %v", err)
	}
	if created.ID <= 0 || created.Name != "buy milk" || created.IsDone {
		t.Fatalf("unexpected todo %+v", created)
	}
	path := func(action string) string {
		return "/todos/" + action + "/" + itoa(created.ID)
	}

	rec = env.do(t, http.MethodPut, path("updateTodos"), `{"isDone":true}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.Todo
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Name != "buy milk" || !updated.IsDone {
		t.Fatalf("unexpected update result %+v", updated)
	}

	rec = env.do(t, http.MethodGet, "/todos", "", token)
	var todos []domain.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &todos); err != nil || len(todos) != 1 {
		t.Fatalf("expected one todo, got %s (%v)", rec.Body.String(), err)
	}

	rec = env.do(t, http.MethodDelete, path("deleteTodos"), "", token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Successfully deleted Todo") {
		t.Fatalf("delete: got %d: %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodDelete, path("deleteTodos"), "", token), http.StatusNotFound, "Todo with that ID doesn't exist")
	expectError(t, env.do(t, http.MethodGet, "/todos", "", token), http.StatusNotFound, "Todos Not Found")
}

func TestTodoOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice", "alice@x.com")
	bob := env.signup(t, "bob", "bob@x.com")

	rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"T1","isDone":false}`, alice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected short name to be rejected, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"T1 task","isDone":false}`, alice)
	var created domain.Todo
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	expectError(t, env.do(t, http.MethodPut, "/todos/updateTodos/"+itoa(created.ID), `{"name":"stolen","isDone":true}`, bob), http.StatusUnauthorized, "Cannot update someone else's Todo")
	expectError(t, env.do(t, http.MethodDelete, "/todos/deleteTodos/"+itoa(created.ID), "", bob), http.StatusUnauthorized, "Cannot delete someone else's Todo")
	expectError(t, env.do(t, http.MethodGet, "/todos", "", bob), http.StatusNotFound, "Todos Not Found")

	stored, err := env.store.GetTodo(context.Background(), created.ID)
	if err != nil || stored.Name != "T1 task" || stored.IsDone {
		t.Fatalf("todo changed by non-owner: %+v (%v)", stored, err)
	}
}

func TestTodoRequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "alice", "alice@x.com")

	expectError(t, env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk"}`, token), http.StatusBadRequest, `"isDone" is required`)
	expectError(t, env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk","isDone":false,"owner":2}`, token), http.StatusBadRequest, `"owner" is not allowed`)
	expectError(t, env.do(t, http.MethodPut, "/todos/updateTodos/abc", `{"isDone":true}`, token), http.StatusBadRequest, `"id" must be a number`)
	expectError(t, env.do(t, http.MethodPut, "/todos/updateTodos/0", `{"isDone":true}`, token), http.StatusBadRequest, `"id" must be a positive number`)
	expectError(t, env.do(t, http.MethodPut, "/todos/updateTodos/99", `{"isDone":true}`, token), http.StatusNotFound, "Todo with that ID doesn't exist")
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodGet, "/todos", "", ""), http.StatusUnauthorized, "authentication required")
	expectError(t, env.do(t, http.MethodGet, "/todos", "", "not-a-jwt"), http.StatusUnauthorized, "authentication failed")

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusUnauthorized, "authentication required")
}

func TestUsersRequireSuperAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice", "alice@x.com")
	admin := env.login(t, "admin@x.com", "secret1")

	expectError(t, env.do(t, http.MethodGet, "/users", "", alice), http.StatusForbidden, "Insufficient permission")
	expectError(t, env.do(t, http.MethodPost, "/users", `{"name":"carol","email":"carol@x.com","password":"secret1"}`, alice), http.StatusForbidden, "Insufficient permission")

	rec := env.do(t, http.MethodGet, "/users?q=alice", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var users []domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil || len(users) != 1 || users[0].Email != "alice@x.com" {
		t.Fatalf("unexpected users %s (%v)", rec.Body.String(), err)
	}
	if strings.Contains(rec.Body.String(), "asswordHash") {
		t.Fatal("password hash leaked in response")
	}
	expectError(t, env.do(t, http.MethodGet, "/users?size=11", "", admin), http.StatusBadRequest, `"size" must be less than or equal to 10`)
	expectError(t, env.do(t, http.MethodGet, "/users?q=zzz", "", admin), http.StatusNotFound, "No users created to show")
}

func TestUserAdministration(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.login(t, "admin@x.com", "secret1")

	rec := env.do(t, http.MethodPost, "/users", `{"name":"carol","email":"carol@x.com","password":"secret1"}`, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var carol domain.User
	_ = json.Unmarshal(rec.Body.Bytes(), &carol)
	if len(carol.Permission) != 1 || carol.Permission[0] != domain.RoleUser {
		t.Fatalf("unexpected permission %v", carol.Permission)
	}
	expectError(t, env.do(t, http.MethodPost, "/users", `{"name":"carol","email":"carol@x.com","password":"secret1"}`, admin), http.StatusConflict, "Email already taken")

	path := "/users/" + itoa(carol.ID)
	rec = env.do(t, http.MethodGet, path, "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	expectError(t, env.do(t, http.MethodPut, path, `{"email":"admin@x.com"}`, admin), http.StatusConflict, "Email already taken")

	rec = env.do(t, http.MethodPut, path, `{"email":"carol2@x.com","password":"newsecret"}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env.login(t, "carol2@x.com", "newsecret")

	rec = env.do(t, http.MethodDelete, path, "", admin)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Successfully deleted user") {
		t.Fatalf("delete: got %d: %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodGet, path, "", admin), http.StatusNotFound, "No user with that id")
	expectError(t, env.do(t, http.MethodPut, path, `{"password":"another1"}`, admin), http.StatusNotFound, "No user with that ID")
	expectError(t, env.do(t, http.MethodDelete, path, "", admin), http.StatusNotFound, "No user with that id")
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	login := env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com","password":"secret1"}`, "")
	cookie := login.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec := env.do(t, http.MethodGet, "/users", "", body["accessToken"]); rec.Code != http.StatusOK {
		t.Fatalf("refreshed token rejected: %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+cookie.Value+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh via body: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	if cleared := rec.Result().Cookies(); len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}

	expectError(t, env.do(t, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+cookie.Value+`"}`, ""), http.StatusForbidden, "Invalid refresh token")
	expectError(t, env.do(t, http.MethodPost, "/auth/refresh", "", ""), http.StatusForbidden, "Invalid refresh token")
}

func TestRouteNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodGet, "/does-not-exist", "", ""), http.StatusNotFound, "Route not found")
	expectError(t, env.do(t, http.MethodGet, "/todos/addTodos/extra", "", ""), http.StatusNotFound, "Route not found")
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) { cfg.LoginRateLimit = 2 })
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com","password":"wrong"}`, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing rate limit headers: %v", rec.Header())
		}
	}
	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"admin@x.com","password":"secret1"}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected no remaining budget, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestGlobalRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.RateLimitMax = 3
		cfg.RateLimitWindow = time.Minute
	})
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodGet, "/todos", "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/nowhere", "", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) { cfg.LoginRateLimit = 2 })
	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@x.com","password":"wrong"}`))
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Fatalf("expected 8 of 10 attempts from one address to be limited, got %d", limited)
	}
}

func TestTodoWritesLimitedPerUser(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) { cfg.TodoRateLimit = 2 })
	alice := env.signup(t, "alice", "alice@x.com")
	bob := env.signup(t, "bob", "bob@x.com")

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk","isDone":false}`, alice); rec.Code != http.StatusCreated {
			t.Fatalf("add %d: expected 201, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodPut, "/todos/updateTodos/1", `{"isDone":true}`, alice)
	expectError(t, rec, http.StatusTooManyRequests, "Too many requests, please try again later.")

	if rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"walk dog","isDone":false}`, bob); rec.Code != http.StatusCreated {
		t.Fatalf("expected another user to keep their budget, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/todos", "", alice); rec.Code != http.StatusOK {
		t.Fatalf("expected reads to stay outside the write budget, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk","isDone":false}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous writes to be rejected before limiting, got %d", rec.Code)
	}
}

func TestUpdateRequiresAField(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "alice", "alice@x.com")
	rec := env.do(t, http.MethodPost, "/todos/addTodos", `{"name":"buy milk","isDone":false}`, token)
	var created domain.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode todo: %v", err)
	}
	expectError(t, env.do(t, http.MethodPut, "/todos/updateTodos/"+itoa(created.ID), `{}`, token), http.StatusBadRequest, `"value" must contain at least one of [name, isDone]`)

	admin := env.login(t, "admin@x.com", "secret1")
	expectError(t, env.do(t, http.MethodPut, "/users/1", `{}`, admin), http.StatusBadRequest, `"value" must contain at least one of [email, password]`)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}

	env.router.dbHealth = func(context.Context) error { return errors.New("connection refused") }
	rec = env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("expected degraded health, got %d: %s", rec.Code, rec.Body.String())
	}
}

type failingTodoRepo struct {
	todo.Repository
}

func (failingTodoRepo) ListTodosByOwner(context.Context, int64) ([]domain.Todo, error) {
	return nil, errors.New("store offline")
}

func TestInternalErrorsAreMasked(t *testing.T) {
	env := newTestEnv(t, nil)
	env.router.todos = todo.New(failingTodoRepo{}, testLogger())
	token := env.login(t, "admin@x.com", "secret1")

	rec := env.do(t, http.MethodGet, "/todos", "", token)
	expectError(t, rec, http.StatusInternalServerError, "internal server error")
	if strings.Contains(rec.Body.String(), "store offline") {
		t.Fatal("internal error detail leaked")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
