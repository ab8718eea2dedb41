/*
Package access provides utilities for access control

Access tokens are HS256 signed JWTs carrying the account id, email and username.
They are stateless: there is no revocation, a token is valid until it expires.
*/
package access

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that are malformed, badly signed or expired
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the decoded payload of an access token
type Identity struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Claims are the JWT claims of an access token
type Claims struct {
	AccountID int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access tokens
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewIssuer returns an issuer signing with secret. Tokens expire after validity.
func NewIssuer(secret string, validity time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), validity: validity, now: time.Now}
}

// Issue mints a token for identity and returns it with its expiry time
func (i *Issuer) Issue(identity Identity) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.validity)
	claims := Claims{
		AccountID: identity.ID,
		Email:     identity.Email,
		Username:  identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("cannot sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies tokenString and returns its identity. Every failure, including
// expiry, wraps ErrInvalidToken.
func (i *Issuer) Parse(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: claims.AccountID, Email: claims.Email, Username: claims.Username}, nil
}
