package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/ordering/internal/auth"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/handler"
	"github.com/kiwari-pos/ordering/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Mock store ---

// failingUsers simulates a backend outage.
type failingUsers struct{}

var errBackend = errors.New("connection refused")

func (failingUsers) GetUserByEmail(context.Context, string) (store.User, error) {
	return store.User{}, errBackend
}
func (failingUsers) GetUserByID(context.Context, string) (store.User, error) {
	return store.User{}, errBackend
}
func (failingUsers) CreateUser(context.Context, store.User) (store.User, error) {
	return store.User{}, errBackend
}

// --- Helpers ---

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func newUsersWithStaff(t *testing.T) (*store.MemoryUsers, store.User) {
	t.Helper()
	users := store.NewMemoryUsers()
	u, err := users.CreateUser(context.Background(), store.User{
		Email:        "staff@test.com",
		FullName:     "Test Staff",
		PasswordHash: hashPassword(t, "correct-password"),
		Role:         enum.UserRoleStaff,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return users, u
}

func authRouter(s handler.AuthStore) http.Handler {
	h := handler.NewAuthHandler(s, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, path, "", body)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	users, _ := newUsersWithStaff(t)
	r := authRouter(users)

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "Staff@Test.com",
		"password": "correct-password",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	accessToken, _ := resp["access_token"].(string)
	if accessToken == "" {
		t.Fatal("expected non-empty access_token")
	}
	if resp["refresh_token"] == nil || resp["refresh_token"] == "" {
		t.Error("expected non-empty refresh_token")
	}

	userResp, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatal("expected user object in response")
	}
	if userResp["email"] != "staff@test.com" {
		t.Errorf("user email: got %v, want staff@test.com", userResp["email"])
	}
	if userResp["role"] != enum.UserRoleStaff {
		t.Errorf("user role: got %v, want STAFF", userResp["role"])
	}

	claims, err := auth.ValidateToken(testSecret, accessToken)
	if err != nil {
		t.Fatalf("access token should validate: %v", err)
	}
	if claims.Role != enum.UserRoleStaff || claims.UserID != userResp["id"] {
		t.Errorf("claims: got %+v", claims)
	}
}

func TestLogin_Rejections(t *testing.T) {
	users, _ := newUsersWithStaff(t)

	tests := []struct {
		name   string
		store  handler.AuthStore
		body   map[string]string
		status int
	}{
		{"wrong password", users, map[string]string{"email": "staff@test.com", "password": "wrong-password"}, http.StatusUnauthorized},
		{"unknown user", users, map[string]string{"email": "nobody@test.com", "password": "password"}, http.StatusUnauthorized},
		{"missing password", users, map[string]string{"email": "staff@test.com"}, http.StatusBadRequest},
		{"store down", failingUsers{}, map[string]string{"email": "staff@test.com", "password": "x"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, authRouter(tt.store), "/auth/login", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

// --- Register tests ---

func TestRegister_CreatesCustomer(t *testing.T) {
	users := store.NewMemoryUsers()
	r := authRouter(users)

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"email":     "aina@example.com",
		"password":  "s3cret-pass",
		"full_name": "Aina Rahman",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	userResp := resp["user"].(map[string]interface{})
	if userResp["role"] != enum.UserRoleCustomer {
		t.Errorf("self sign-up must be a customer, got %v", userResp["role"])
	}

	stored, err := users.GetUserByEmail(context.Background(), "aina@example.com")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if stored.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in clear text")
	}

	// The new account can sign in.
	rr = postJSON(t, r, "/auth/login", map[string]string{"email": "aina@example.com", "password": "s3cret-pass"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login after register: got %d", rr.Code)
	}
}

func TestRegister_Rejections(t *testing.T) {
	users, _ := newUsersWithStaff(t)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"duplicate email", map[string]string{"email": "staff@test.com", "password": "long-enough", "full_name": "Copy"}, http.StatusConflict},
		{"bad email", map[string]string{"email": "not-an-email", "password": "long-enough", "full_name": "X"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "a@b.com", "password": "short", "full_name": "X"}, http.StatusBadRequest},
		{"missing name", map[string]string{"email": "a@b.com", "password": "long-enough"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, authRouter(users), "/auth/register", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

// --- Refresh tests ---

func TestRefresh_ValidToken(t *testing.T) {
	users, user := newUsersWithStaff(t)
	r := authRouter(users)

	refreshToken, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rr := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["access_token"] == nil || resp["access_token"] == "" {
		t.Error("expected non-empty access_token")
	}
}

func TestRefresh_Rejections(t *testing.T) {
	users, user := newUsersWithStaff(t)
	accessToken, _ := auth.GenerateToken(testSecret, user.ID, user.Role)
	orphanToken, _ := auth.GenerateRefreshToken(testSecret, "deleted-user")

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"garbage token", map[string]string{"refresh_token": "not-a-valid-token"}, http.StatusUnauthorized},
		{"access token", map[string]string{"refresh_token": accessToken}, http.StatusUnauthorized},
		{"user deleted", map[string]string{"refresh_token": orphanToken}, http.StatusUnauthorized},
		{"missing field", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, authRouter(users), "/auth/refresh", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}
