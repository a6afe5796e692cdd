package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
)

// ProfileRepository keeps profiles in process memory. Ids are unique like the
// primary key of the remote table.
type ProfileRepository struct {
	mu      sync.RWMutex
	items   map[string]profile.Record
	inserts int
}

func NewProfileRepository(seed ...profile.Record) *ProfileRepository {
	items := make(map[string]profile.Record, len(seed))
	for _, item := range seed {
		items[item.ID] = item
	}
	return &ProfileRepository{items: items}
}

func (r *ProfileRepository) GetByID(_ context.Context, id string) (profile.Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[strings.TrimSpace(id)]
	return item, ok, nil
}

func (r *ProfileRepository) Insert(_ context.Context, rec profile.Record, mode profile.InsertMode) (profile.Record, bool, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return profile.Record{}, false, fmt.Errorf("%w: id is required", usecase.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.inserts++
	if _, exists := r.items[rec.ID]; exists {
		if mode == profile.InsertModeIgnoreDuplicates {
			return profile.Record{}, false, nil
		}
		return profile.Record{}, false, fmt.Errorf("%w: duplicate key value violates unique constraint on id=%s", usecase.ErrConflict, rec.ID)
	}

	r.items[rec.ID] = rec
	return rec, true, nil
}

// InsertCalls reports how many inserts were attempted, including rejected ones.
func (r *ProfileRepository) InsertCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.inserts
}
