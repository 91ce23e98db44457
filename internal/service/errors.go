package service

import "errors"

// Taxonomía de errores del núcleo de autenticación. Los handlers los mapean
// con errors.Is; nunca se filtran detalles internos al cliente.
var (
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidCode          = errors.New("invalid code format")
	ErrInvalidOrExpiredCode = errors.New("code invalid or expired")
	ErrDeliveryFailure      = errors.New("code delivery failed")
	ErrIncompleteProfile    = errors.New("external profile incomplete")
	ErrNameRequired         = errors.New("display name required")
	ErrStaleSession         = errors.New("session no longer valid")
	ErrRateLimited          = errors.New("rate limited")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserSuspended        = errors.New("user suspended")
)
