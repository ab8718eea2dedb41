// Package accounts registers and authenticates users.
//
// Accounts live either in the local postgres store or in the external registry, see
// SQLStore and RemoteStore. Passwords are only ever kept as bcrypt hashes.
package accounts

import (
	"context"
	"errors"
	"strings"
)

// DefaultRole is assigned to new accounts
const DefaultRole = "user"

// errors returned by the service
var (
	ErrMissingFields             = errors.New("missing fields")
	ErrAccountNotFound           = errors.New("account not found")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrDuplicateAccount          = errors.New("account already exists")
	ErrPasswordChangeUnsupported = errors.New("password change not supported by account store")
)

// Account is a stored account. PasswordHash never leaves the package boundary
// towards clients, use Summary.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

// Summary is the client facing view of an account
type Summary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

// Summary returns the account without its password hash
func (a Account) Summary() Summary {
	return Summary{ID: a.ID, Username: a.Username, Email: a.Email, Role: a.Role}
}

// NewAccount is an account to be created
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

// Store looks up and creates accounts. Lookups return nil and no error when nothing matches.
type Store interface {
	// FindByIdentifier matches a normalized identifier against the normalized email
	// and username of every account. An email match wins over a username match.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account NewAccount) (int64, error)
}

// PasswordUpdater is implemented by stores that can change a password hash
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, accountID int64, passwordHash string) error
}

// Normalize trims and lowercases an identifier
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
