package external

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
)

// User is an account as stored by the external registry
type User struct {
	UserID       int64  `json:"UserId,omitempty"`
	Username     string `json:"Username"`
	Email        string `json:"Email"`
	PasswordHash string `json:"PasswordHash"`
	Role         string `json:"Role,omitempty"`
}

// ListUsers returns all accounts of the registry
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, http.MethodGet, pathUsers, nil, &users)
	return users, err
}

// AddUser creates an account and returns the id assigned by the registry, or 0 if the
// registry does not report one
func (c *Client) AddUser(ctx context.Context, user User) (int64, error) {
	var created json.RawMessage
	if err := c.do(ctx, http.MethodPost, pathAddUser, user, &created); err != nil {
		return 0, err
	}
	var answer struct {
		UserID int64 `json:"UserId"`
		ID     int64 `json:"id"`
	}
	if len(created) == 0 || json.Unmarshal(created, &answer) != nil {
		return 0, nil
	}
	if answer.UserID != 0 {
		return answer.UserID, nil
	}
	return answer.ID, nil
}
