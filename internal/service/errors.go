package service

import (
	"errors"
	"fmt"

	"github.com/Skotchmaster/user_service/internal/tokens"
)

// Token and permission failures. All of them are client errors.
var (
	ErrMissingBearer        = errors.New("missing or malformed bearer token")
	ErrTokenParse           = tokens.ErrTokenParse
	ErrTokenExpired         = tokens.ErrTokenExpired
	ErrNoSuchTokenUser      = errors.New("token refers to a non-existent user")
	ErrStaleRevision        = errors.New("refresh token superseded, log in again")
	ErrRestrictedPermission = errors.New("not enough rights for this action")
	ErrAccountBanned        = errors.New("account is banned")
	ErrRevisionExists       = errors.New("revision record already exists")
)

// User-level failures.
var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("user with that email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSuchUser         = errors.New("no such user")
	ErrSelfAction         = errors.New("action is not allowed on self")
)

// ErrStorage marks infrastructure failures (network, timeout, driver errors).
// It is retryable by the caller and never means the token itself is bad.
var ErrStorage = errors.New("storage unavailable")

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
