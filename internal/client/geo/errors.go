package geo

import (
	"context"
	"errors"
)

// ErrorKind is the platform-level reason a position could not be read.
type ErrorKind int

const (
	KindPermissionDenied ErrorKind = iota + 1
	KindPositionUnavailable
	KindTimeout
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindPositionUnavailable:
		return "position unavailable"
	case KindTimeout:
		return "timeout"
	case KindUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Message is the text shown to the user for k.
func (k ErrorKind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Location permission denied. Please enable location access."
	case KindPositionUnavailable:
		return "Location information is unavailable. Please check if GPS is enabled."
	case KindTimeout:
		return "Location request timed out. Please try again."
	case KindUnsupported:
		return "Geolocation is not supported by this device."
	}
	return "Unknown error occurred while getting location."
}

// Class groups error kinds by how they are handled.
type Class int

const (
	// ClassCapability: the platform cannot provide location at all.
	ClassCapability Class = iota + 1
	// ClassPermission: the user must grant access in platform settings.
	ClassPermission
	// ClassTransient: the next watch callback or refresh may succeed.
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassCapability:
		return "capability"
	case ClassPermission:
		return "permission"
	case ClassTransient:
		return "transient"
	}
	return "unknown"
}

func Classify(k ErrorKind) Class {
	switch k {
	case KindUnsupported:
		return ClassCapability
	case KindPermissionDenied:
		return ClassPermission
	}
	return ClassTransient
}

// PositionError carries an ErrorKind and an optional cause. Two
// PositionErrors match under errors.Is when their kinds are equal and the
// target has no cause.
type PositionError struct {
	Kind ErrorKind
	Err  error
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return "location " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "location " + e.Kind.String()
}

func (e *PositionError) Unwrap() error { return e.Err }

func (e *PositionError) Is(target error) bool {
	t, ok := target.(*PositionError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrPermissionDenied    = &PositionError{Kind: KindPermissionDenied}
	ErrPositionUnavailable = &PositionError{Kind: KindPositionUnavailable}
	ErrTimeout             = &PositionError{Kind: KindTimeout}
	ErrUnsupported         = &PositionError{Kind: KindUnsupported}
)

func NewError(kind ErrorKind, cause error) *PositionError {
	return &PositionError{Kind: kind, Err: cause}
}

// AsPositionError converts err into a *PositionError. Context deadline
// errors become KindTimeout; anything else unknown becomes
// KindPositionUnavailable.
func AsPositionError(err error) *PositionError {
	if err == nil {
		return nil
	}
	var pe *PositionError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, err)
	}
	return NewError(KindPositionUnavailable, err)
}
