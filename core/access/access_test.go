package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/agrigate/core/logger"
)

var alice = Identity{ID: 42, Email: "alice@example.com", Username: "alice"}

func issuerAt(t time.Time) *Issuer {
	i := NewIssuer("test-secret", time.Hour)
	i.now = func() time.Time { return t }
	return i
}

func TestIssueParse_RoundTrip(t *testing.T) {
	i := NewIssuer("test-secret", time.Hour)
	token, expiresAt, err := i.Issue(alice)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	identity, err := i.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, alice, *identity)
}

func TestParse_ValidityWindow(t *testing.T) {
	verifier := NewIssuer("test-secret", time.Hour)

	token, _, err := issuerAt(time.Now().Add(-59 * time.Minute)).Issue(alice)
	require.NoError(t, err)
	_, err = verifier.Parse(token)
	assert.NoError(t, err, "a token is accepted before its hour is over")

	token, _, err = issuerAt(time.Now().Add(-61 * time.Minute)).Issue(alice)
	require.NoError(t, err)
	_, err = verifier.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "a token is rejected after its hour is over")
}

func TestParse_WrongSecret(t *testing.T) {
	token, _, err := NewIssuer("other-secret", time.Hour).Issue(alice)
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{AccountID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RequiresExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{AccountID: 1}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("pw", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", hash)

	assert.NoError(t, ComparePassword(hash, "pw"))
	assert.ErrorIs(t, ComparePassword(hash, "wrong"), ErrPasswordMismatch)
	assert.Error(t, ComparePassword("not-a-hash", "pw"))
	assert.NotErrorIs(t, ComparePassword("not-a-hash", "pw"), ErrPasswordMismatch)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"Bearer abc":        "abc",
		"bearer abc":        "abc",
		"Bearer ":           "",
		"Bearer null":       "null",
		"abc":               "",
		"Basic dXNlcjpwdw==": "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, BearerToken(r), "header %q", header)
	}
}

func TestJwtMiddleware(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	mw := NewJwtMiddleware(issuer)

	var seen *Identity
	var seenLogIdentity string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		seenLogIdentity = logger.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	call := func(header string) (int, string) {
		r := httptest.NewRequest(http.MethodGet, "/api/data/farms", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		var body struct {
			Message string `json:"message"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body.Message
	}

	status, msg := call("")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, MessageTokenRequired, msg)

	status, msg = call("Bearer not.a.token")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, MessageTokenInvalid, msg)

	for _, placeholder := range []string{"Bearer null", "Bearer undefined"} {
		status, msg = call(placeholder)
		assert.Equal(t, http.StatusForbidden, status, "a present token %q is verified, not treated as missing", placeholder)
		assert.Equal(t, MessageTokenInvalid, msg)
	}

	expired, _, err := issuerAt(time.Now().Add(-2 * time.Hour)).Issue(alice)
	require.NoError(t, err)
	status, msg = call("Bearer " + expired)
	assert.Equal(t, http.StatusForbidden, status, "expiry is never reported as a missing token")
	assert.Equal(t, MessageTokenInvalid, msg)

	valid, _, err := issuer.Issue(alice)
	require.NoError(t, err)
	status, _ = call("Bearer " + valid)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, seen)
	assert.Equal(t, alice, *seen)
	assert.Equal(t, "alice@example.com", seenLogIdentity)
}
