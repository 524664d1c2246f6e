// Package common defines shared constants and sentinel errors used across
// the client and server layers of gpstracker. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// ErrValidation marks a location payload that is missing a username,
	// latitude or longitude. Not retried.
	ErrValidation = errors.New("validation error")

	// ErrTransport marks a network or backend failure while talking to the
	// history store. The next periodic save is the de facto retry.
	ErrTransport = errors.New("transport error")

	// ErrInvalidIdentity is returned when a username is empty or blank.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrNoIdentity is returned by commands that need a current username.
	ErrNoIdentity = errors.New("no username set")

	// ErrArchiveDisabled is returned when no object storage is configured.
	ErrArchiveDisabled = errors.New("archive disabled")
)
