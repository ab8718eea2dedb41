package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relabs-tech/agrigate/core/access"
	"github.com/relabs-tech/agrigate/core/logger"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   Summary
}

// Service implements registration, login and password change on top of a Store
type Service struct {
	store      Store
	issuer     *access.Issuer
	bcryptCost int
}

// NewService returns a service. bcryptCost is the work factor of new hashes.
func NewService(store Store, issuer *access.Issuer, bcryptCost int) *Service {
	return &Service{store: store, issuer: issuer, bcryptCost: bcryptCost}
}

// Register creates an account and returns its id. The email is stored normalized.
func (s *Service) Register(ctx context.Context, username, email, password string) (int64, error) {
	username = strings.TrimSpace(username)
	email = Normalize(email)
	if username == "" || email == "" || password == "" {
		return 0, ErrMissingFields
	}

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("cannot look up %s: %w", email, err)
	}
	if existing != nil {
		return 0, ErrDuplicateAccount
	}

	hash, err := access.HashPassword(password, s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("cannot hash password: %w", err)
	}
	id, err := s.store.Create(ctx, NewAccount{Username: username, Email: email, PasswordHash: hash, Role: DefaultRole})
	if err != nil {
		return 0, err
	}
	logger.FromContext(ctx).Infof("registered account %d (%s)", id, email)
	return id, nil
}

// Login verifies identifier (email or username) and password and mints an access token.
// It returns ErrAccountNotFound or ErrInvalidCredentials when the login is rejected.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = Normalize(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingFields
	}

	account, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("cannot look up %s: %w", identifier, err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := access.ComparePassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, access.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		// a stored value that is not a bcrypt hash never authenticates
		logger.FromContext(ctx).WithError(err).Errorf("account %d has an unusable password hash", account.ID)
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(access.Identity{ID: account.ID, Email: account.Email, Username: account.Username})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account.Summary()}, nil
}

// ChangePassword replaces the password of the account identified by email after verifying
// the current one
func (s *Service) ChangePassword(ctx context.Context, email, current, next string) error {
	if current == "" || next == "" {
		return ErrMissingFields
	}
	updater, ok := s.store.(PasswordUpdater)
	if !ok {
		return ErrPasswordChangeUnsupported
	}

	account, err := s.store.FindByEmail(ctx, Normalize(email))
	if err != nil {
		return fmt.Errorf("cannot look up %s: %w", email, err)
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if err := access.ComparePassword(account.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := access.HashPassword(next, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("cannot hash password: %w", err)
	}
	if err := updater.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return err
	}
	logger.FromContext(ctx).Infof("password changed for account %d", account.ID)
	return nil
}
