// Package repositorytest provides an in-memory ContestRepository so service
// and handler tests can run without a database.
package repositorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"practice_arena/internal/common"
	"practice_arena/internal/domain/model"
)

type ContestRepo struct {
	mu           sync.Mutex
	contests     map[string]model.VirtualContest
	items        map[string][]model.VirtualContestItem
	participants map[string]map[string]time.Time

	// CreateConflicts makes the next N CreateContest calls fail with
	// common.ErrConflict, simulating id collisions.
	CreateConflicts int
}

func NewContestRepo() *ContestRepo {
	return &ContestRepo{
		contests:     map[string]model.VirtualContest{},
		items:        map[string][]model.VirtualContestItem{},
		participants: map[string]map[string]time.Time{},
	}
}

func (r *ContestRepo) CreateContest(ctx context.Context, c *model.VirtualContest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateConflicts > 0 {
		r.CreateConflicts--
		return fmt.Errorf("contest id %s already exists: %w", c.ID, common.ErrConflict)
	}
	if _, ok := r.contests[c.ID]; ok {
		return fmt.Errorf("contest id %s already exists: %w", c.ID, common.ErrConflict)
	}
	stored := *c
	stored.Items = nil
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.contests[c.ID] = stored
	return nil
}

func (r *ContestRepo) UpdateContest(ctx context.Context, c *model.VirtualContest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.contests[c.ID]
	if !ok {
		return fmt.Errorf("contest %s: %w", c.ID, common.ErrNotFound)
	}
	stored.Title = c.Title
	stored.Memo = c.Memo
	stored.StartEpochSecond = c.StartEpochSecond
	stored.DurationSecond = c.DurationSecond
	stored.Mode = c.Mode
	stored.UpdatedAt = time.Now()
	r.contests[c.ID] = stored
	return nil
}

func (r *ContestRepo) ReplaceItems(ctx context.Context, contestID string, items []model.VirtualContestItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contests[contestID]; !ok {
		return fmt.Errorf("contest %s: %w", contestID, common.ErrNotFound)
	}
	replaced := make([]model.VirtualContestItem, len(items))
	for i, item := range items {
		item.ContestID = contestID
		item.ItemOrder = i
		replaced[i] = item
	}
	r.items[contestID] = replaced
	return nil
}

func (r *ContestRepo) AddParticipant(ctx context.Context, contestID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contests[contestID]; !ok {
		return fmt.Errorf("contest %s: %w", contestID, common.ErrNotFound)
	}
	roster, ok := r.participants[contestID]
	if !ok {
		roster = map[string]time.Time{}
		r.participants[contestID] = roster
	}
	if _, joined := roster[userID]; !joined {
		roster[userID] = time.Now()
	}
	return nil
}

func (r *ContestRepo) FindContestByID(ctx context.Context, id string) (*model.VirtualContest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.contests[id]
	if !ok {
		return nil, fmt.Errorf("contest %s: %w", id, common.ErrNotFound)
	}
	contest := stored
	return &contest, nil
}

func (r *ContestRepo) GetItemsByContestID(ctx context.Context, contestID string) ([]model.VirtualContestItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]model.VirtualContestItem, len(r.items[contestID]))
	copy(items, r.items[contestID])
	return items, nil
}

func (r *ContestRepo) ListOwnedContests(ctx context.Context, userID string) ([]model.VirtualContest, error) {
	return r.list(func(c model.VirtualContest) bool { return c.OwnerUserID == userID }, true)
}

func (r *ContestRepo) ListParticipatedContests(ctx context.Context, userID string) ([]model.VirtualContest, error) {
	return r.list(func(c model.VirtualContest) bool {
		_, joined := r.participants[c.ID][userID]
		return joined
	}, true)
}

func (r *ContestRepo) ListRecentContests(ctx context.Context, from, to int64, orderDesc bool) ([]model.VirtualContest, error) {
	return r.list(func(c model.VirtualContest) bool {
		return c.StartEpochSecond <= to && c.StartEpochSecond+c.DurationSecond >= from
	}, orderDesc)
}

// ParticipantCount reports the roster size for assertions on join idempotency.
func (r *ContestRepo) ParticipantCount(contestID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants[contestID])
}

func (r *ContestRepo) list(match func(model.VirtualContest) bool, orderDesc bool) ([]model.VirtualContest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contests := []model.VirtualContest{}
	for _, c := range r.contests {
		if match(c) {
			contests = append(contests, c)
		}
	}
	sort.Slice(contests, func(i, j int) bool {
		if orderDesc {
			return contests[i].StartEpochSecond > contests[j].StartEpochSecond
		}
		return contests[i].StartEpochSecond < contests[j].StartEpochSecond
	})
	return contests, nil
}
