// Package api holds the JSON bodies exchanged between the tracking client
// and the history server.
package api

import "time"

// LocationRequest is the body of POST /locations. Coordinates are pointers so
// that an explicit 0 is distinguishable from an omitted field.
type LocationRequest struct {
	Username  string     `json:"username" validate:"required"`
	Latitude  *float64   `json:"latitude" validate:"required"`
	Longitude *float64   `json:"longitude" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
}

// Location is one stored sample as returned by the server.
type Location struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

type HistoryResponse struct {
	Username  string     `json:"username"`
	Locations []Location `json:"locations"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type ArchiveResponse struct {
	Username  string    `json:"username"`
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
