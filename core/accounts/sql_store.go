package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/agrigate/core/csql"
)

const queryTimeout = 5 * time.Second

const accountColumns = `user_id, username, email, password_hash, role`

// SQLStore keeps accounts in the local "users" table
type SQLStore struct {
	db csql.DBTX
}

// NewSQLStore returns a store over db
func NewSQLStore(db csql.DBTX) *SQLStore {
	return &SQLStore{db: db}
}

// FindByIdentifier implements Store
func (s *SQLStore) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM users
WHERE lower(trim(email)) = $1 OR lower(trim(username)) = $1
ORDER BY (lower(trim(email)) = $1) DESC, user_id
LIMIT 1;`, Normalize(identifier))
}

// FindByEmail implements Store
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM users
WHERE lower(trim(email)) = $1
LIMIT 1;`, Normalize(email))
}

// Create implements Store. A concurrent registration of the same email is reported as
// ErrDuplicateAccount.
func (s *SQLStore) Create(ctx context.Context, account NewAccount) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	role := account.Role
	if role == "" {
		role = DefaultRole
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING user_id;`,
		account.Username, account.Email, account.PasswordHash, role).Scan(&id)
	if csql.IsUniqueViolation(err) {
		return 0, ErrDuplicateAccount
	}
	if err != nil {
		return 0, fmt.Errorf("cannot insert account: %w", err)
	}
	return id, nil
}

// UpdatePasswordHash implements PasswordUpdater
func (s *SQLStore) UpdatePasswordHash(ctx context.Context, accountID int64, passwordHash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE user_id = $2;`, passwordHash, accountID)
	if err != nil {
		return fmt.Errorf("cannot update account %d: %w", accountID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *SQLStore) queryOne(ctx context.Context, query string, args ...interface{}) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Account
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role)
	if errors.Is(err, csql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
