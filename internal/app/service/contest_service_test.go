package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"practice_arena/internal/common"
	"practice_arena/internal/common/security"
	"practice_arena/internal/domain/model"
	"practice_arena/internal/domain/repository/repositorytest"
	"practice_arena/internal/platform/config"
)

func TestMain(m *testing.M) {
	config.Load()
	security.InitJWT()
	os.Exit(m.Run())
}

func newTestService() (*ContestService, *repositorytest.ContestRepo) {
	repo := repositorytest.NewContestRepo()
	return NewContestService(repo, nil), repo
}

func strPtr(s string) *string { return &s }

func mustCreate(t *testing.T, svc *ContestService, owner string, req CreateContestRequest) *model.VirtualContest {
	t.Helper()
	contest, err := svc.Create(context.Background(), owner, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return contest
}

func TestCreateGetRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "u1", CreateContestRequest{
		Title:            "Practice A",
		Memo:             "weekly set",
		StartEpochSecond: 1000,
		DurationSecond:   3600,
	})
	if created.ID == "" {
		t.Fatal("Create returned empty contest id")
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Practice A" || got.Memo != "weekly set" {
		t.Errorf("round trip lost text fields: %+v", got)
	}
	if got.OwnerUserID != "u1" {
		t.Errorf("owner = %q, want u1", got.OwnerUserID)
	}
	if got.StartEpochSecond != 1000 || got.DurationSecond != 3600 {
		t.Errorf("window = [%d, %d), want [1000, 4600)", got.StartEpochSecond, got.StartEpochSecond+got.DurationSecond)
	}
	if got.Mode != model.ModeStandard {
		t.Errorf("mode = %q, want default", got.Mode)
	}
	if len(got.Items) != 0 {
		t.Errorf("new contest has %d items, want 0", len(got.Items))
	}
}

func TestCreateWithExplicitMode(t *testing.T) {
	svc, _ := newTestService()

	created := mustCreate(t, svc, "u1", CreateContestRequest{
		Title: "Lockout", StartEpochSecond: 0, DurationSecond: 1800, Mode: strPtr("lockout"),
	})
	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != model.ModeLockout {
		t.Errorf("mode = %q, want %q", got.Mode, model.ModeLockout)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateContestRequest
	}{
		{"negative duration", CreateContestRequest{Title: "bad", StartEpochSecond: 1000, DurationSecond: -1}},
		{"negative start", CreateContestRequest{Title: "bad", StartEpochSecond: -5, DurationSecond: 60}},
		{"unknown mode", CreateContestRequest{Title: "bad", StartEpochSecond: 0, DurationSecond: 60, Mode: strPtr("speedrun")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "u1", tc.req); !errors.Is(err, common.ErrValidation) {
				t.Errorf("Create = %v, want ErrValidation", err)
			}
		})
	}

	if contests, _ := svc.ListOwned(ctx, "u1"); len(contests) != 0 {
		t.Errorf("rejected creates left %d stored contests", len(contests))
	}
}

func TestCreateRetriesIDCollision(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	repo.CreateConflicts = 2
	if _, err := svc.Create(ctx, "u1", CreateContestRequest{Title: "retry", DurationSecond: 60}); err != nil {
		t.Fatalf("Create should survive two collisions: %v", err)
	}

	repo.CreateConflicts = 3
	if _, err := svc.Create(ctx, "u1", CreateContestRequest{Title: "retry", DurationSecond: 60}); !errors.Is(err, common.ErrConflict) {
		t.Errorf("Create after exhausted retries = %v, want ErrConflict", err)
	}
}

func TestUpdateOwnership(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "u1", CreateContestRequest{Title: "Practice A", StartEpochSecond: 1000, DurationSecond: 3600})

	err := svc.Update(ctx, created.ID, "u2", UpdateContestRequest{Title: "hijacked", StartEpochSecond: 1, DurationSecond: 1})
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("non-owner update = %v, want ErrForbidden", err)
	}
	if errors.Is(err, common.ErrNotFound) {
		t.Fatal("ownership failure must not read as not-found")
	}

	got, _ := svc.Get(ctx, created.ID)
	if got.Title != "Practice A" || got.StartEpochSecond != 1000 {
		t.Errorf("rejected update mutated the record: %+v", got)
	}

	if err := svc.Update(ctx, created.ID, "u1", UpdateContestRequest{
		Title: "Practice A2", Memo: "moved", StartEpochSecond: 2000, DurationSecond: 7200, Mode: strPtr("training"),
	}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	got, _ = svc.Get(ctx, created.ID)
	if got.Title != "Practice A2" || got.Memo != "moved" || got.StartEpochSecond != 2000 || got.DurationSecond != 7200 {
		t.Errorf("owner update not applied: %+v", got)
	}
	if got.Mode != model.ModeTraining {
		t.Errorf("mode = %q, want %q", got.Mode, model.ModeTraining)
	}
	if got.OwnerUserID != "u1" {
		t.Errorf("update changed owner to %q", got.OwnerUserID)
	}
}

func TestReplaceItems(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "u1", CreateContestRequest{Title: "items", DurationSecond: 3600})

	first := []ContestItemRequest{{ProblemID: "abc001_a"}, {ProblemID: "abc002_b"}, {ProblemID: "arc050_c"}}
	if err := svc.ReplaceItems(ctx, created.ID, "u1", first); err != nil {
		t.Fatalf("ReplaceItems: %v", err)
	}
	got, _ := svc.Get(ctx, created.ID)
	if len(got.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(got.Items))
	}
	for i, want := range []string{"abc001_a", "abc002_b", "arc050_c"} {
		if got.Items[i].ProblemID != want || got.Items[i].ItemOrder != i {
			t.Errorf("item %d = %+v, want problem %s at order %d", i, got.Items[i], want, i)
		}
	}

	// Wholesale replacement: the old list disappears entirely.
	second := []ContestItemRequest{{ProblemID: "agc030_f"}, {ProblemID: "abc001_a"}}
	if err := svc.ReplaceItems(ctx, created.ID, "u1", second); err != nil {
		t.Fatalf("second ReplaceItems: %v", err)
	}
	got, _ = svc.Get(ctx, created.ID)
	if len(got.Items) != 2 || got.Items[0].ProblemID != "agc030_f" || got.Items[1].ProblemID != "abc001_a" {
		t.Errorf("replacement merged lists: %+v", got.Items)
	}

	// Clearing the list is a valid replacement.
	if err := svc.ReplaceItems(ctx, created.ID, "u1", nil); err != nil {
		t.Fatalf("clearing ReplaceItems: %v", err)
	}
	got, _ = svc.Get(ctx, created.ID)
	if len(got.Items) != 0 {
		t.Errorf("cleared list still has %d items", len(got.Items))
	}
}

func TestReplaceItemsAuthorizationAndValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "u1", CreateContestRequest{Title: "items", DurationSecond: 3600})
	if err := svc.ReplaceItems(ctx, created.ID, "u1", []ContestItemRequest{{ProblemID: "abc001_a"}}); err != nil {
		t.Fatalf("ReplaceItems: %v", err)
	}

	err := svc.ReplaceItems(ctx, created.ID, "u2", []ContestItemRequest{{ProblemID: "evil"}})
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("non-owner ReplaceItems = %v, want ErrForbidden", err)
	}
	got, _ := svc.Get(ctx, created.ID)
	if len(got.Items) != 1 || got.Items[0].ProblemID != "abc001_a" {
		t.Errorf("rejected replacement mutated items: %+v", got.Items)
	}

	if err := svc.ReplaceItems(ctx, created.ID, "u1", []ContestItemRequest{{ProblemID: ""}}); !errors.Is(err, common.ErrValidation) {
		t.Errorf("empty problem_id = %v, want ErrValidation", err)
	}
	if err := svc.ReplaceItems(ctx, created.ID, "u1", []ContestItemRequest{{ProblemID: "p"}, {ProblemID: "p"}}); !errors.Is(err, common.ErrValidation) {
		t.Errorf("duplicate problem_id = %v, want ErrValidation", err)
	}
}

func TestJoinIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "u1", CreateContestRequest{Title: "join", DurationSecond: 3600})

	if err := svc.Join(ctx, created.ID, "u2"); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if err := svc.Join(ctx, created.ID, "u2"); err != nil {
		t.Fatalf("second Join must be a no-op, got: %v", err)
	}
	if n := repo.ParticipantCount(created.ID); n != 1 {
		t.Errorf("participant rows = %d, want 1", n)
	}

	// The owner may join their own contest.
	if err := svc.Join(ctx, created.ID, "u1"); err != nil {
		t.Fatalf("owner self-join: %v", err)
	}
	if n := repo.ParticipantCount(created.ID); n != 2 {
		t.Errorf("participant rows = %d, want 2", n)
	}
}

func TestListMembership(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created := mustCreate(t, svc, "userA", CreateContestRequest{Title: "membership", DurationSecond: 3600})
	if err := svc.Join(ctx, created.ID, "userB"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	owned, _ := svc.ListOwned(ctx, "userA")
	if len(owned) != 1 || owned[0].ID != created.ID {
		t.Errorf("ListOwned(userA) = %+v, want the created contest", owned)
	}
	if owned, _ := svc.ListOwned(ctx, "userB"); len(owned) != 0 {
		t.Errorf("ListOwned(userB) = %+v, want empty", owned)
	}

	joined, _ := svc.ListParticipated(ctx, "userB")
	if len(joined) != 1 || joined[0].ID != created.ID {
		t.Errorf("ListParticipated(userB) = %+v, want the joined contest", joined)
	}
	if joined, _ := svc.ListParticipated(ctx, "userA"); len(joined) != 0 {
		t.Errorf("ListParticipated(userA) = %+v, want empty (owner did not join)", joined)
	}
}

func TestUnknownContestID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if err := svc.Update(ctx, "missing", "u1", UpdateContestRequest{Title: "x", DurationSecond: 1}); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Update = %v, want ErrNotFound", err)
	}
	if err := svc.ReplaceItems(ctx, "missing", "u1", []ContestItemRequest{{ProblemID: "p"}}); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("ReplaceItems = %v, want ErrNotFound", err)
	}
	if err := svc.Join(ctx, "missing", "u1"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Join = %v, want ErrNotFound", err)
	}
}

func TestListRecentHorizon(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Now().Unix()
	lookback := config.AppConfig.RecentLookbackSeconds
	lookahead := config.AppConfig.RecentLookaheadSeconds

	mustCreate(t, svc, "u1", CreateContestRequest{Title: "long past", StartEpochSecond: now - lookback - 7200, DurationSecond: 3600})
	recentPast := mustCreate(t, svc, "u1", CreateContestRequest{Title: "recent past", StartEpochSecond: now - 3600, DurationSecond: 1800})
	upcoming := mustCreate(t, svc, "u1", CreateContestRequest{Title: "upcoming", StartEpochSecond: now + 3600, DurationSecond: 1800})
	mustCreate(t, svc, "u1", CreateContestRequest{Title: "far future", StartEpochSecond: now + lookahead + 7200, DurationSecond: 3600})
	// Started before the horizon but still running inside it.
	longRunning := mustCreate(t, svc, "u1", CreateContestRequest{Title: "long running", StartEpochSecond: now - lookback - 7200, DurationSecond: lookback + 14400})

	recent, err := svc.ListRecent(ctx, now)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("ListRecent returned %d contests, want 3: %+v", len(recent), recent)
	}
	// Default order is start_epoch_second descending.
	wantOrder := []string{upcoming.ID, recentPast.ID, longRunning.ID}
	for i, want := range wantOrder {
		if recent[i].ID != want {
			t.Errorf("recent[%d] = %s (%s), want %s", i, recent[i].ID, recent[i].Title, want)
		}
	}
}
