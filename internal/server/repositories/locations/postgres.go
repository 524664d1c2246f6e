package locations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gpstracker/internal/dbx"
	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// PostgresDB is what the repository needs from *sql.DB.
type PostgresDB interface {
	dbx.DBTX
	dbx.TxBeginner
}

type PostgresRepository struct {
	db    PostgresDB
	newID func() string
}

func NewPostgresRepository(db PostgresDB) *PostgresRepository {
	return &PostgresRepository{db: db, newID: uuid.NewString}
}

// Append records the user and the location in one transaction.
func (r *PostgresRepository) Append(ctx context.Context, loc *models.Location) (*models.Location, error) {
	out := *loc
	out.ID = r.newID()

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, first_seen_at, last_seen_at)
			 VALUES ($1, $2, $2)
			 ON CONFLICT (username) DO UPDATE SET last_seen_at = GREATEST(users.last_seen_at, EXCLUDED.last_seen_at)`,
			out.Username, out.CapturedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO locations (id, username, latitude, longitude, captured_at, accuracy)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			out.ID, out.Username, out.Latitude, out.Longitude, out.CapturedAt, nullFloat(out.Accuracy))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &out, nil
}

func (r *PostgresRepository) Recent(ctx context.Context, username string, limit int) ([]models.Location, error) {
	query :=
		`SELECT id, username, latitude, longitude, captured_at, accuracy FROM (
		     SELECT id, username, latitude, longitude, captured_at, accuracy FROM locations
		     WHERE username = $1
		     ORDER BY captured_at DESC, id DESC
		     LIMIT $2
		 ) recent
		 ORDER BY captured_at ASC, id ASC`

	return r.list(ctx, query, username, limit)
}

func (r *PostgresRepository) All(ctx context.Context, username string) ([]models.Location, error) {
	query :=
		`SELECT id, username, latitude, longitude, captured_at, accuracy FROM locations
		 WHERE username = $1
		 ORDER BY captured_at ASC, id ASC`

	return r.list(ctx, query, username)
}

func (r *PostgresRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.Location, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Location, 0)
	for rows.Next() {
		var (
			loc      models.Location
			accuracy sql.NullFloat64
		)
		if err := rows.Scan(&loc.ID, &loc.Username, &loc.Latitude, &loc.Longitude, &loc.CapturedAt, &accuracy); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if accuracy.Valid {
			v := accuracy.Float64
			loc.Accuracy = &v
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
