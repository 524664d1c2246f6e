package locations

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// MemoryRepository keeps history in process memory. Rows with equal
// CapturedAt keep insertion order.
type MemoryRepository struct {
	mu     sync.RWMutex
	byUser map[string][]models.Location
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUser: make(map[string][]models.Location)}
}

func (r *MemoryRepository) Append(_ context.Context, loc *models.Location) (*models.Location, error) {
	out := *loc
	out.ID = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	rows := append(r.byUser[out.Username], out)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CapturedAt.Before(rows[j].CapturedAt) })
	r.byUser[out.Username] = rows

	return &out, nil
}

func (r *MemoryRepository) Recent(_ context.Context, username string, limit int) ([]models.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.byUser[username]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return append(make([]models.Location, 0, len(rows)), rows...), nil
}

func (r *MemoryRepository) All(ctx context.Context, username string) ([]models.Location, error) {
	return r.Recent(ctx, username, 0)
}

func (r *MemoryRepository) Exists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[username]) > 0, nil
}
