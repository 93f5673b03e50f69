package auth

import (
	"context"
	"errors"
	"log"
	"net/http"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
	apperrors "lab-scheduler-api/pkg/errors"
)

// UserLookup loads a login account by username. It is satisfied by
// repository.UserRepository.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// Identity is the authenticated caller.
type Identity struct {
	UserID   int64
	Username string
	Email    string
	Role     model.Role
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator checks HTTP Basic credentials against stored bcrypt hashes.
type Authenticator struct {
	users  UserLookup
	logger *log.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(users UserLookup, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Default()
	}
	return &Authenticator{users: users, logger: logger}
}

// Middleware rejects requests without valid credentials of an active user.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			a.challenge(w, "Authentication required")
			return
		}

		user, err := a.users.GetUserByUsername(r.Context(), username)
		if err != nil || !CheckPassword(user.HashedPassword, password) {
			if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
				a.logger.Printf("Credential lookup for %q failed: %v", username, err)
			}
			a.challenge(w, "Invalid authentication credentials")
			return
		}

		if !user.IsActive {
			writeError(w, apperrors.ForbiddenError("Inactive user"))
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits only callers with one of roles. It must run after
// Middleware.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, apperrors.UnauthorizedError("Authentication required"))
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperrors.ForbiddenError("Not enough permissions"))
		})
	}
}

func (a *Authenticator) challenge(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="lab"`)
	writeError(w, apperrors.UnauthorizedError(message))
}

func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.GetHTTPStatus())
	_, _ = w.Write(appErr.ToJSON())
}
