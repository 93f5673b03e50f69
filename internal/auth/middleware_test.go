package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockUserLookup struct {
	GetUserByUsernameFunc func(ctx context.Context, username string) (*model.User, error)
}

func (m *MockUserLookup) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return m.GetUserByUsernameFunc(ctx, username)
}

func newTestAuthenticator(t *testing.T, users map[string]*model.User) *Authenticator {
	t.Helper()
	return NewAuthenticator(&MockUserLookup{
		GetUserByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			if u, ok := users[username]; ok {
				return u, nil
			}
			return nil, repository.ErrUserNotFound
		},
	}, nil)
}

func testUser(t *testing.T, id int64, username, password string, role model.Role, active bool) *model.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return &model.User{ID: id, Username: username, Email: username + "@lab.local", HashedPassword: hash, Role: role, IsActive: active}
}

func identityEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", id.Username)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator(t, map[string]*model.User{
		"admin":  testUser(t, 1, "admin", "pw", model.RoleAdmin, true),
		"frozen": testUser(t, 2, "frozen", "pw", model.RoleStudent, false),
	})
	handler := a.Middleware(identityEcho(t))

	tests := []struct {
		name       string
		user, pass string
		noAuth     bool
		wantStatus int
	}{
		{name: "valid credentials", user: "admin", pass: "pw", wantStatus: http.StatusOK},
		{name: "missing header", noAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "wrong password", user: "admin", pass: "nope", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", user: "ghost", pass: "pw", wantStatus: http.StatusUnauthorized},
		{name: "inactive user", user: "frozen", pass: "pw", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if !tt.noAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.user, rr.Header().Get("X-User"))
			}
		})
	}
}

func TestMiddleware_LookupFailure(t *testing.T) {
	a := NewAuthenticator(&MockUserLookup{
		GetUserByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return nil, errors.New("connection reset")
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "pw")
	rr := httptest.NewRecorder()
	a.Middleware(identityEcho(t)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		identity   *Identity
		roles      []model.Role
		wantStatus int
	}{
		{name: "admin on admin route", identity: &Identity{Role: model.RoleAdmin}, roles: []model.Role{model.RoleAdmin}, wantStatus: http.StatusNoContent},
		{name: "student on admin route", identity: &Identity{Role: model.RoleStudent}, roles: []model.Role{model.RoleAdmin}, wantStatus: http.StatusForbidden},
		{name: "admin on student route", identity: &Identity{Role: model.RoleAdmin}, roles: []model.Role{model.RoleStudent, model.RoleAdmin}, wantStatus: http.StatusNoContent},
		{name: "anonymous", roles: []model.Role{model.RoleAdmin}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			rr := httptest.NewRecorder()

			RequireRole(tt.roles...)(ok).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
