package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"practice_arena/internal/common"
	"practice_arena/internal/domain/model"
	"practice_arena/internal/domain/repository"
	"practice_arena/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const recentCacheKey = "contests:recent"

// maxCreateAttempts bounds the internal retry on contest id collisions.
const maxCreateAttempts = 3

// ContestService owns validation and ownership checks in front of the contest
// store. It is stateless; all cross-record atomicity lives in the repository.
type ContestService struct {
	contestRepo repository.ContestRepository
	rdb         *redis.Client // optional recent-listing cache, nil to disable
}

func NewContestService(contestRepo repository.ContestRepository, rdb *redis.Client) *ContestService {
	return &ContestService{contestRepo: contestRepo, rdb: rdb}
}

type CreateContestRequest struct {
	Title            string  `json:"title"`
	Memo             string  `json:"memo"`
	StartEpochSecond int64   `json:"start_epoch_second"`
	DurationSecond   int64   `json:"duration_second"`
	Mode             *string `json:"mode,omitempty"`
}

type UpdateContestRequest struct {
	Title            string  `json:"title"`
	Memo             string  `json:"memo"`
	StartEpochSecond int64   `json:"start_epoch_second"`
	DurationSecond   int64   `json:"duration_second"`
	Mode             *string `json:"mode,omitempty"`
}

type ContestItemRequest struct {
	ProblemID string `json:"problem_id"`
}

func (s *ContestService) Create(ctx context.Context, ownerUserID string, req CreateContestRequest) (*model.VirtualContest, error) {
	mode, err := validateWindow(req.StartEpochSecond, req.DurationSecond, req.Mode)
	if err != nil {
		return nil, err
	}

	contest := &model.VirtualContest{
		Title:            req.Title,
		Memo:             req.Memo,
		OwnerUserID:      ownerUserID,
		StartEpochSecond: req.StartEpochSecond,
		DurationSecond:   req.DurationSecond,
		Mode:             mode,
	}

	// Retry with a fresh id on collision a bounded number of times; uuid
	// collisions are astronomically rare but the store reports them as
	// ErrConflict and the last one surfaces.
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		contest.ID = uuid.NewString()
		err = s.contestRepo.CreateContest(ctx, contest)
		if err == nil {
			contest.Items = []model.VirtualContestItem{}
			return contest, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		log.Printf("WARN: contest id collision on attempt %d, retrying", attempt+1)
	}
	return nil, err
}

func (s *ContestService) Update(ctx context.Context, contestID, callerUserID string, req UpdateContestRequest) error {
	mode, err := validateWindow(req.StartEpochSecond, req.DurationSecond, req.Mode)
	if err != nil {
		return err
	}
	if _, err := s.authorizeOwner(ctx, contestID, callerUserID); err != nil {
		return err
	}
	return s.contestRepo.UpdateContest(ctx, &model.VirtualContest{
		ID:               contestID,
		Title:            req.Title,
		Memo:             req.Memo,
		StartEpochSecond: req.StartEpochSecond,
		DurationSecond:   req.DurationSecond,
		Mode:             mode,
	})
}

// ReplaceItems swaps the contest's whole problem list for the given sequence.
// Only the owner may do this; positions follow the request order.
func (s *ContestService) ReplaceItems(ctx context.Context, contestID, callerUserID string, reqItems []ContestItemRequest) error {
	items := make([]model.VirtualContestItem, len(reqItems))
	seen := make(map[string]struct{}, len(reqItems))
	for i, item := range reqItems {
		if item.ProblemID == "" {
			return common.Errorf("problem_id must not be empty: %w", common.ErrValidation)
		}
		if _, dup := seen[item.ProblemID]; dup {
			return common.Errorf("duplicate problem_id %s: %w", item.ProblemID, common.ErrValidation)
		}
		seen[item.ProblemID] = struct{}{}
		items[i] = model.VirtualContestItem{ContestID: contestID, ProblemID: item.ProblemID, ItemOrder: i}
	}

	if _, err := s.authorizeOwner(ctx, contestID, callerUserID); err != nil {
		return err
	}
	return s.contestRepo.ReplaceItems(ctx, contestID, items)
}

// Join registers the caller as a participant. Joining an already-joined
// contest is a no-op; the owner may join their own contest.
func (s *ContestService) Join(ctx context.Context, contestID, callerUserID string) error {
	return s.contestRepo.AddParticipant(ctx, contestID, callerUserID)
}

// Get is a public read: the contest with its ordered item list.
func (s *ContestService) Get(ctx context.Context, contestID string) (*model.VirtualContest, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	items, err := s.contestRepo.GetItemsByContestID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	contest.Items = items
	return contest, nil
}

func (s *ContestService) ListOwned(ctx context.Context, callerUserID string) ([]model.VirtualContest, error) {
	return s.contestRepo.ListOwnedContests(ctx, callerUserID)
}

func (s *ContestService) ListParticipated(ctx context.Context, callerUserID string) ([]model.VirtualContest, error) {
	return s.contestRepo.ListParticipatedContests(ctx, callerUserID)
}

// ListRecent serves contests whose window overlaps the configured horizon
// around now, through the cache when one is wired.
func (s *ContestService) ListRecent(ctx context.Context, now int64) ([]model.VirtualContest, error) {
	if s.rdb != nil {
		payload, err := s.rdb.Get(ctx, recentCacheKey).Result()
		if err == nil {
			var contests []model.VirtualContest
			if jsonErr := json.Unmarshal([]byte(payload), &contests); jsonErr == nil {
				return contests, nil
			}
			log.Printf("WARN: discarding unreadable recent-contest cache entry")
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("WARN: recent-contest cache read failed: %v", err)
		}
	}
	return s.RefreshRecent(ctx, now)
}

// RefreshRecent recomputes the recent listing from the store and re-primes the
// cache. Cache write failures are logged, not surfaced; the listing itself is
// authoritative.
func (s *ContestService) RefreshRecent(ctx context.Context, now int64) ([]model.VirtualContest, error) {
	cfg := config.AppConfig
	contests, err := s.contestRepo.ListRecentContests(ctx,
		now-cfg.RecentLookbackSeconds, now+cfg.RecentLookaheadSeconds, cfg.RecentOrderDesc)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		payload, err := json.Marshal(contests)
		if err == nil {
			if err := s.rdb.Set(ctx, recentCacheKey, payload, cfg.RecentCacheTTL).Err(); err != nil {
				log.Printf("WARN: recent-contest cache write failed: %v", err)
			}
		}
	}
	return contests, nil
}

// authorizeOwner loads the contest and rejects callers other than its owner.
// A missing contest is ErrNotFound; a non-owner is ErrForbidden, never
// downgraded to not-found.
func (s *ContestService) authorizeOwner(ctx context.Context, contestID, callerUserID string) (*model.VirtualContest, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.OwnerUserID != callerUserID {
		return nil, common.Errorf("user %s does not own contest %s: %w", callerUserID, contestID, common.ErrForbidden)
	}
	return contest, nil
}

func validateWindow(start, duration int64, rawMode *string) (model.ContestMode, error) {
	if duration < 0 {
		return "", common.Errorf("duration_second must be non-negative, got %d: %w", duration, common.ErrValidation)
	}
	if start < 0 {
		return "", common.Errorf("start_epoch_second must be non-negative, got %d: %w", start, common.ErrValidation)
	}
	mode, err := model.ParseContestMode(rawMode)
	if err != nil {
		return "", common.Errorf("%v: %w", err, common.ErrValidation)
	}
	return mode, nil
}
