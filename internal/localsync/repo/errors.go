package repo

import (
	"errors"

	"github.com/aatrooox/localsync/internal/localsync/remote"
)

var (
	// ErrNotFound is returned by UpdateLocal when no record has the id.
	ErrNotFound = errors.New("record not found")

	// ErrNotInitialized is returned when a repository is used before setup.
	ErrNotInitialized = errors.New("repository not initialized")

	// ErrRemoteDisabled is returned by remote writes while mirroring is off.
	ErrRemoteDisabled = errors.New("remote sync is disabled")
)

// RemoteRequestError is returned by remote writes that got a non-2xx
// response. StatusCode carries the status.
type RemoteRequestError = remote.StatusError
