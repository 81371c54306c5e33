package services

import "errors"

var (
	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateAccount means the email is already registered.
	ErrDuplicateAccount = errors.New("email already exists")
	// ErrAccountNotFound means no account matches the requested id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSoundNotFound means no sound matches the requested id (or it is not
	// visible to the caller).
	ErrSoundNotFound = errors.New("sound not found")
)
