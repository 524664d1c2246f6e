package models

import "time"

// Location is one accepted position sample. Rows are append-only.
type Location struct {
	ID         string
	Username   string
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
	Accuracy   *float64
}
