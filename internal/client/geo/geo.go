// Package geo wraps a platform location primitive behind a single-watch
// Position Source.
package geo

import (
	"context"
	"time"
)

// Sample is one position fix. Optional readings are nil when the platform
// did not report them.
type Sample struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64 // metres
	Altitude   *float64 // metres
	Speed      *float64 // metres per second
	CapturedAt time.Time
}

// EpochMillis returns CapturedAt as Unix milliseconds.
func (s Sample) EpochMillis() int64 {
	return s.CapturedAt.UnixMilli()
}

// Options tune a watch or one-shot request.
type Options struct {
	HighAccuracy bool
	// MaxSampleAge allows reuse of a cached sample no older than this.
	MaxSampleAge time.Duration
	// Timeout bounds the wait for a sample. Zero means no bound.
	Timeout time.Duration
}

var (
	DefaultWatchOptions = Options{HighAccuracy: true, MaxSampleAge: 10 * time.Second, Timeout: 10 * time.Second}
	DefaultOnceOptions  = Options{HighAccuracy: true, MaxSampleAge: 0, Timeout: 10 * time.Second}
)

// Permission is the platform's answer to "may this process read location".
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
	PermissionPrompt
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionPrompt:
		return "prompt"
	}
	return "unknown"
}

// WatchID identifies a platform watch.
type WatchID int64

// Platform is the environment-specific location primitive.
//
// WatchPosition and CurrentPosition return an error matching ErrUnsupported
// when the platform has no location capability. Callbacks may run on any
// goroutine, and may run before WatchPosition returns.
type Platform interface {
	WatchPosition(opts Options, onSample func(Sample), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
	CurrentPosition(ctx context.Context, opts Options) (Sample, error)
	Permission(ctx context.Context) (Permission, error)
}

// CapabilityChecker answers whether location can currently be read.
type CapabilityChecker interface {
	Check(ctx context.Context) (Permission, error)
}

// PlatformChecker asks the platform itself.
type PlatformChecker struct {
	Platform Platform
}

func (c PlatformChecker) Check(ctx context.Context) (Permission, error) {
	if c.Platform == nil {
		return PermissionDenied, ErrUnsupported
	}
	return c.Platform.Permission(ctx)
}

// StaticChecker always returns the same answer.
type StaticChecker struct {
	Result Permission
	Err    error
}

func (c StaticChecker) Check(context.Context) (Permission, error) {
	return c.Result, c.Err
}
