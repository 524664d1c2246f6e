// Package identity holds the username the client tags its saved positions
// with. The value survives restarts through a metadata store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gpstracker/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/observer"
)

// Identity is the current username. Username is "" when none is set.
type Identity struct {
	Username string
}

func (i Identity) IsSet() bool { return i.Username != "" }

// Holder owns the single Identity of a client instance. Subscribers are
// notified once per change, synchronously and in subscription order.
type Holder struct {
	store metadata.Repository

	mu       sync.Mutex
	username string
	subject  observer.Subject[Identity]
}

// NewHolder returns a Holder persisting to store. A nil store keeps the
// identity in memory only.
func NewHolder(store metadata.Repository) *Holder {
	return &Holder{store: store}
}

// Load restores the persisted identity without notifying subscribers.
func (h *Holder) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	v, err := h.store.Get(ctx, common.IdentityKey)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	h.mu.Lock()
	h.username = v
	h.mu.Unlock()
	return nil
}

// Get returns the current username and whether one is set.
func (h *Holder) Get() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.username, h.username != ""
}

// Set stores username. Empty or whitespace-only names are rejected with
// common.ErrInvalidIdentity. The name is stored as given.
func (h *Holder) Set(ctx context.Context, username string) (Identity, error) {
	if strings.TrimSpace(username) == "" {
		return Identity{}, common.ErrInvalidIdentity
	}

	h.mu.Lock()
	if h.username == username {
		h.mu.Unlock()
		return Identity{Username: username}, nil
	}
	if h.store != nil {
		if err := h.store.Set(ctx, common.IdentityKey, username); err != nil {
			h.mu.Unlock()
			return Identity{}, fmt.Errorf("save identity: %w", err)
		}
	}
	h.username = username
	h.mu.Unlock()

	id := Identity{Username: username}
	h.subject.Notify(id)
	return id, nil
}

// Clear forgets the identity. Clearing when none is set is a no-op.
func (h *Holder) Clear(ctx context.Context) error {
	h.mu.Lock()
	if h.username == "" {
		h.mu.Unlock()
		return nil
	}
	if h.store != nil {
		if err := h.store.Delete(ctx, common.IdentityKey); err != nil {
			h.mu.Unlock()
			return fmt.Errorf("clear identity: %w", err)
		}
	}
	h.username = ""
	h.mu.Unlock()

	h.subject.Notify(Identity{})
	return nil
}

func (h *Holder) Subscribe(fn func(Identity)) observer.Handle {
	return h.subject.Subscribe(fn)
}

func (h *Holder) Unsubscribe(handle observer.Handle) {
	h.subject.Unsubscribe(handle)
}
