package users

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/google/uuid"
)

// InMemoryRepository keeps users in process memory. It is used by the
// "memory" store kind and in tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
	now   func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

// taken reports whether username or email belongs to a user other than exceptID.
// Callers hold mu.
func (r *InMemoryRepository) taken(username, email, exceptID string) bool {
	for id, u := range r.users {
		if id == exceptID {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}

func (r *InMemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := clone(user)
	u.Username = strings.ToLower(u.Username)
	u.Email = strings.ToLower(u.Email)

	if r.taken(u.Username, u.Email, "") {
		return nil, fmt.Errorf("%w: username or email already exists", common.ErrorConflict)
	}

	u.ID = uuid.NewString()
	u.RefreshToken = nil
	u.CreatedAt = r.now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = u

	return clone(u), nil
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *InMemoryRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	username, email = strings.ToLower(username), strings.ToLower(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.User
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			if found == nil || u.CreatedAt.Before(found.CreatedAt) {
				found = u
			}
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return clone(found), nil
}

func (r *InMemoryRepository) UpdateByID(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*models.User, error) {
	if !opts.SkipValidation {
		if err := patch.Validate(); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if patch.Empty() {
		return clone(u), nil
	}

	updated := clone(u)
	apply(updated, patch)
	if r.taken(updated.Username, updated.Email, id) {
		return nil, fmt.Errorf("%w: username or email already exists", common.ErrorConflict)
	}
	updated.UpdatedAt = r.now().UTC()
	r.users[id] = updated

	return clone(updated), nil
}

func (r *InMemoryRepository) SwapRefreshToken(ctx context.Context, id string, expected, next *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}

	current := u.RefreshToken
	if (current == nil) != (expected == nil) || (current != nil && *current != *expected) {
		return ErrRefreshTokenMismatch
	}

	updated := clone(u)
	updated.RefreshToken = cloneString(next)
	updated.UpdatedAt = r.now().UTC()
	r.users[id] = updated
	return nil
}
