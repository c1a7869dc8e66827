package storage

import (
	"context"
	"strings"

	"queueserver/session"

	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
)

// Messages shown to users for the error codes returned by the Identity Toolkit.
var providerMessages = map[string]string{
	"EMAIL_NOT_FOUND":             "Invalid email or password.",
	"INVALID_PASSWORD":            "Invalid email or password.",
	"INVALID_LOGIN_CREDENTIALS":   "Invalid email or password.",
	"USER_DISABLED":               "This account has been disabled.",
	"EMAIL_EXISTS":                "An account with this email already exists.",
	"WEAK_PASSWORD":               "Password should be at least 6 characters.",
	"INVALID_EMAIL":               "Please enter a valid email address.",
	"MISSING_PASSWORD":            "Please enter a password.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Please try again later.",
	"OPERATION_NOT_ALLOWED":       "Password sign-in is disabled for this project.",
}

// SignInWithPassword verifies email and password and returns the account with a fresh ID token.
func (qs *QueueStorage) SignInWithPassword(ctx context.Context, email, password string) (*session.Account, error) {
	resp, err := qs.toolkit.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, providerError(err)
	}
	return &session.Account{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoUrl,
		IDToken:     resp.IdToken,
	}, nil
}

// SignUpWithPassword creates an account with a display name and returns it with an ID token.
func (qs *QueueStorage) SignUpWithPassword(ctx context.Context, email, password, displayName string) (*session.Account, error) {
	resp, err := qs.toolkit.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}).Context(ctx).Do()
	if err != nil {
		return nil, providerError(err)
	}
	name := resp.DisplayName
	if name == "" {
		name = displayName
	}
	return &session.Account{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: name,
		IDToken:     resp.IdToken,
	}, nil
}

// VerifyToken checks an ID token issued to the project and loads the account it belongs to.
func (qs *QueueStorage) VerifyToken(ctx context.Context, idToken string) (*session.Account, error) {
	token, err := qs.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, &session.ProviderError{
			Code:    "INVALID_ID_TOKEN",
			Message: "Your session has expired. Please sign in again.",
			Err:     err,
		}
	}
	record, err := qs.auth.GetUser(ctx, token.UID)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %s", token.UID)
	}
	return &session.Account{
		UID:         record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		PhotoURL:    record.PhotoURL,
	}, nil
}

// providerError turns an Identity Toolkit failure into a session.ProviderError. Error messages look
// like "WEAK_PASSWORD : Password should be at least 6 characters"; the code is the part before
// the colon.
func providerError(err error) error {
	apiErr, ok := errors.Cause(err).(*googleapi.Error)
	if !ok {
		return errors.Wrap(err, "identity toolkit")
	}
	code := strings.TrimSpace(apiErr.Message)
	if i := strings.Index(code, ":"); i >= 0 {
		code = strings.TrimSpace(code[:i])
	}
	return &session.ProviderError{
		Code:    code,
		Message: providerMessages[code],
		Err:     err,
	}
}
