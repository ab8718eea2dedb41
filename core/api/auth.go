package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/access"
	"github.com/relabs-tech/agrigate/core/accounts"
	"github.com/relabs-tech/agrigate/core/apierror"
	"github.com/relabs-tech/agrigate/core/schema"
)

const (
	messageFieldsRequired   = "All fields are required."
	messageLoginRequired    = "Identifier and password are required."
	messageUserNotFound     = "User not found"
	messageWrongPassword    = "Wrong password"
	messagePasswordRequired = "Current and new password are required."
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      accounts.Summary `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// decodeValid validates body against schemaID and decodes it into v
func (a *API) decodeValid(body []byte, schemaID string, v interface{}) error {
	if err := a.validator.ValidateBytes(body, schemaID); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, apierror.Validation(messageFieldsRequired), messageEnvelope)
		return
	}
	var req registerRequest
	if err := a.decodeValid(body, schema.Register, &req); err != nil {
		fail(w, r, apierror.Validation(messageFieldsRequired), messageEnvelope)
		return
	}

	id, err := a.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, accounts.ErrMissingFields):
		fail(w, r, apierror.Validation(messageFieldsRequired), messageEnvelope)
	case errors.Is(err, accounts.ErrDuplicateAccount):
		fail(w, r, apierror.Conflict("User with this email already exists."), messageEnvelope)
	case err != nil:
		fail(w, r, apierror.Downstream("Server error during registration.", err), messageEnvelope)
	default:
		writeJSON(w, r, http.StatusCreated, map[string]interface{}{
			"message": "User registered successfully!",
			"userId":  id,
		})
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, apierror.Validation(messageLoginRequired), messageEnvelope)
		return
	}
	var req loginRequest
	if err := a.decodeValid(body, schema.Login, &req); err != nil {
		fail(w, r, apierror.Validation(messageLoginRequired), messageEnvelope)
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}

	result, err := a.accounts.Login(r.Context(), identifier, req.Password)
	switch {
	case errors.Is(err, accounts.ErrMissingFields):
		fail(w, r, apierror.Validation(messageLoginRequired), messageEnvelope)
	case errors.Is(err, accounts.ErrAccountNotFound):
		fail(w, r, apierror.Authentication(messageUserNotFound), loginEnvelope)
	case errors.Is(err, accounts.ErrInvalidCredentials):
		fail(w, r, apierror.Authentication(messageWrongPassword), loginEnvelope)
	case err != nil:
		fail(w, r, apierror.Downstream("Server error during login.", err), messageEnvelope)
	default:
		writeJSON(w, r, http.StatusOK, loginResponse{
			Success:   true,
			Message:   "Logged in successfully!",
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
			User:      result.Account,
		})
	}
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	identity := access.IdentityFromContext(r.Context())
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, apierror.Validation(messagePasswordRequired), messageEnvelope)
		return
	}
	var req changePasswordRequest
	if err := a.decodeValid(body, schema.ChangePassword, &req); err != nil {
		fail(w, r, apierror.Validation(messagePasswordRequired), messageEnvelope)
		return
	}

	err = a.accounts.ChangePassword(r.Context(), identity.Email, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, accounts.ErrMissingFields):
		fail(w, r, apierror.Validation(messagePasswordRequired), messageEnvelope)
	case errors.Is(err, accounts.ErrPasswordChangeUnsupported):
		fail(w, r, apierror.Validation("Password change is not supported for this account."), messageEnvelope)
	case errors.Is(err, accounts.ErrAccountNotFound):
		fail(w, r, apierror.NotFound(messageUserNotFound), messageEnvelope)
	case errors.Is(err, accounts.ErrInvalidCredentials):
		fail(w, r, apierror.Authentication("Current password is wrong."), messageEnvelope)
	case err != nil:
		fail(w, r, apierror.Downstream("Server error during password change.", err), messageEnvelope)
	default:
		writeJSON(w, r, http.StatusOK, map[string]string{"message": "Password updated successfully."})
	}
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, access.IdentityFromContext(r.Context()))
}
