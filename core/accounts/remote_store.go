package accounts

import (
	"context"
	"fmt"

	"github.com/relabs-tech/agrigate/core/external"
)

// UserDirectory is the part of the external registry the remote store needs
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]external.User, error)
	AddUser(ctx context.Context, user external.User) (int64, error)
}

// RemoteStore keeps accounts in the external registry. Every lookup fetches the
// complete user list, the registry offers no query by email.
type RemoteStore struct {
	directory UserDirectory
}

// NewRemoteStore returns a store over directory
func NewRemoteStore(directory UserDirectory) *RemoteStore {
	return &RemoteStore{directory: directory}
}

// FindByIdentifier implements Store
func (s *RemoteStore) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list users: %w", err)
	}
	identifier = Normalize(identifier)
	var byUsername *Account
	for _, u := range users {
		if Normalize(u.Email) == identifier {
			return fromUser(u), nil
		}
		if byUsername == nil && Normalize(u.Username) == identifier {
			byUsername = fromUser(u)
		}
	}
	return byUsername, nil
}

// FindByEmail implements Store
func (s *RemoteStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list users: %w", err)
	}
	email = Normalize(email)
	for _, u := range users {
		if Normalize(u.Email) == email {
			return fromUser(u), nil
		}
	}
	return nil, nil
}

// Create implements Store
func (s *RemoteStore) Create(ctx context.Context, account NewAccount) (int64, error) {
	role := account.Role
	if role == "" {
		role = DefaultRole
	}
	id, err := s.directory.AddUser(ctx, external.User{
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Role:         role,
	})
	if err != nil {
		return 0, fmt.Errorf("cannot add user: %w", err)
	}
	return id, nil
}

func fromUser(u external.User) *Account {
	return &Account{
		ID:           u.UserID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
	}
}
