package keyring

import "errors"

var (
	ErrAlreadySetUp       = errors.New("encryption already set up")
	ErrNotSetUp           = errors.New("encryption not set up")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminExists        = errors.New("admin already exists")
	ErrLocked             = errors.New("session key is not available")
	ErrInvalidInput       = errors.New("invalid input")
)
