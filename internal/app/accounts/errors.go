package accounts

import "errors"

var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrNoSuchUser         = errors.New("no such user")
	ErrBadPassword        = errors.New("bad password")
	ErrInvalidInput       = errors.New("invalid registration input")
	ErrStorageUnavailable = errors.New("account storage unavailable")
	// ErrCorruptStore is returned by Open and by backends when persisted
	// records cannot be trusted. It is fatal at startup.
	ErrCorruptStore = errors.New("corrupt account store")
)
