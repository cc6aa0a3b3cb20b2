package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")

	ErrTokenExpired        = errors.New("token is expired")
	ErrTokenInvalid        = errors.New("token is invalid")
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid")

	ErrTaskNotFound = errors.New("task not found")
)

// Request carried no token at all
// Distinct value that still matches ErrNotAuthenticated, so the middleware
// may report "no token" and "token failed" differently
var ErrNoToken = fmt.Errorf("%w: no token", ErrNotAuthenticated)
