/*
Package auth provides admin authentication for the billing dashboard.

PURPOSE:
  The billing core trusts any caller holding a valid session token; this
  package is the external collaborator that issues those tokens. It
  verifies bcrypt-hashed credentials against the admin store and seeds
  the initial account on a fresh database.

DESIGN:
  Authentication is a capability token passed explicitly into admin
  operations (Authorization header), never ambient state. The token is a
  signed JWT carrying the admin's id and username.

SEE ALSO:
  - jwt.go: Token generation and validation
  - api/server.go: Middleware enforcing the token on admin routes
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so the login response never reveals which one failed.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrWeakPassword rejects seed/registration passwords that are too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrUsernameTaken is returned when creating an admin whose username exists.
	ErrUsernameTaken = errors.New("username already registered")
)

// Admin is a dashboard account. Not part of the billing core.
type Admin struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AdminStore defines the persistence operations the authenticator needs.
type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (*Admin, error)
	SaveAdmin(ctx context.Context, a Admin) error
	CountAdmins(ctx context.Context) (int, error)
}

// Authenticator verifies admin credentials using bcrypt.
type Authenticator struct {
	store AdminStore
}

// NewAuthenticator creates a password authenticator over the given store.
func NewAuthenticator(store AdminStore) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate verifies the username and password, returning the admin if
// valid. Unknown user and wrong password return the same error.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Admin, error) {
	admin, err := a.store.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if admin == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// CreateAdmin hashes the password and stores a new admin account.
func (a *Authenticator) CreateAdmin(ctx context.Context, username, password string) (*Admin, error) {
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	admin := Admin{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveAdmin(ctx, admin); err != nil {
		return nil, err
	}
	return &admin, nil
}

// SeedDefaultAdmin creates the initial account when the admins table is
// empty. Returns true if an account was created.
func (a *Authenticator) SeedDefaultAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := a.store.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := a.CreateAdmin(ctx, username, password); err != nil {
		// A concurrent seeder may have won the race.
		if errors.Is(err, ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
