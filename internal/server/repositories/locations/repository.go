// Package locations stores accepted position samples per user.
package locations

import (
	"context"

	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// Repository is append-only storage of locations keyed by username.
type Repository interface {
	// Append stores loc as a new row and returns it with ID set. Identical
	// payloads produce separate rows.
	Append(ctx context.Context, loc *models.Location) (*models.Location, error)

	// Recent returns up to limit of the user's most recent locations in
	// ascending CapturedAt order. An unknown user yields an empty slice.
	Recent(ctx context.Context, username string, limit int) ([]models.Location, error)

	// All returns the user's full history in ascending CapturedAt order.
	All(ctx context.Context, username string) ([]models.Location, error)

	// Exists reports whether the user has at least one stored location.
	Exists(ctx context.Context, username string) (bool, error)
}
