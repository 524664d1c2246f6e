package common

// IdentityKey is the metadata key under which the client persists the
// current username.
const IdentityKey = "gps_tracker_username"

// MaxHistoryLimit caps the number of rows returned by a history query.
const MaxHistoryLimit = 50

// RequestIDHeaderName carries the request ID between client and server.
const RequestIDHeaderName = "X-Request-ID"
