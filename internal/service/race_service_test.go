package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codearena/internal/arena"
	"codearena/internal/cache"
	"codearena/internal/model"
	"codearena/internal/store"
)

// fakeLeaderboard records scores in memory.
type fakeLeaderboard struct {
	scores map[string]map[string]int // code -> user -> score
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{scores: make(map[string]map[string]int)}
}

func (f *fakeLeaderboard) UpdateScore(ctx context.Context, code, userID string, score int) error {
	if f.scores[code] == nil {
		f.scores[code] = make(map[string]int)
	}
	f.scores[code][userID] = score
	return nil
}

func (f *fakeLeaderboard) GetTop(ctx context.Context, code string, limit int) ([]cache.LeaderboardEntry, error) {
	var entries []cache.LeaderboardEntry
	for userID, score := range f.scores[code] {
		entries = append(entries, cache.LeaderboardEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeLeaderboard) GetRank(ctx context.Context, code, userID string) (int64, error) {
	top, _ := f.GetTop(ctx, code, len(f.scores[code]))
	for _, e := range top {
		if e.UserID == userID {
			return int64(e.Rank), nil
		}
	}
	return -1, nil
}

func newRaceFixture(t *testing.T) (*RaceService, *arena.Manager, *fakeResultRepo, *fakeLeaderboard, string) {
	t.Helper()
	ctx := context.Background()

	mgr := arena.NewManager(store.NewMemoryStore(), &fakeJudge{})
	repo := &fakeResultRepo{}
	lb := newFakeLeaderboard()
	svc := NewRaceService(mgr, repo, lb)

	code, err := mgr.CreateSession(ctx, model.Identity{ID: "host1", Name: "Host"}, "backend")
	require.NoError(t, err)
	require.NoError(t, mgr.JoinSession(ctx, code, model.Identity{ID: "u1", Name: "Ada"}))
	require.NoError(t, mgr.SetScenario(ctx, code, "host1", model.Scenario{
		TaskDescription: "task",
		Checkpoints:     []string{"a"},
	}))
	return svc, mgr, repo, lb, code
}

func TestRaceService_StartRequiresHost(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, code := newRaceFixture(t)

	err := svc.StartRace(ctx, code, "u1", time.Hour)
	assert.ErrorIs(t, err, arena.ErrNotHost)
}

func TestRaceService_CompleteRace(t *testing.T) {
	ctx := context.Background()
	svc, mgr, repo, _, code := newRaceFixture(t)

	require.NoError(t, svc.StartRace(ctx, code, "host1", time.Hour))
	require.NoError(t, mgr.UpdateProgress(ctx, code, "host1", 60, model.ParticipantCoding))
	require.NoError(t, mgr.UpdateProgress(ctx, code, "u1", 100, model.ParticipantFinished))

	require.NoError(t, svc.CompleteRace(ctx, code))

	t.Run("session is finished", func(t *testing.T) {
		doc, err := mgr.GetSession(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, model.SessionFinished, doc.Status)
	})

	t.Run("result is archived", func(t *testing.T) {
		require.Len(t, repo.races, 1)
		result := repo.races[0]
		assert.Equal(t, code, result.Code)
		require.Len(t, result.Rankings, 2)
		assert.Equal(t, "u1", result.Rankings[0].UserID)
	})

	t.Run("leaderboard is published", func(t *testing.T) {
		top, err := svc.Leaderboard(ctx, code, 10)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "u1", top[0].UserID)
		assert.Equal(t, 100, top[0].Score)
	})

	t.Run("individual rank is queryable", func(t *testing.T) {
		rank, err := svc.Rank(ctx, code, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rank)

		rank, err = svc.Rank(ctx, code, "host1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rank)

		// Unknown racers are unranked, not an error.
		rank, err = svc.Rank(ctx, code, "ghost")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), rank)
	})

	t.Run("completing twice archives once", func(t *testing.T) {
		require.NoError(t, svc.CompleteRace(ctx, code))
		assert.Len(t, repo.races, 1)
	})
}

func TestRaceService_AllFinishedEndsEarly(t *testing.T) {
	ctx := context.Background()
	svc, mgr, repo, _, code := newRaceFixture(t)

	require.NoError(t, svc.StartRace(ctx, code, "host1", time.Hour))

	require.NoError(t, mgr.UpdateProgress(ctx, code, "u1", 100, model.ParticipantFinished))
	svc.CheckAllFinished(ctx, code)

	// One racer still coding: nothing ends.
	doc, err := mgr.GetSession(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, doc.Status)

	require.NoError(t, mgr.UpdateProgress(ctx, code, "host1", 100, model.ParticipantFinished))
	svc.CheckAllFinished(ctx, code)

	// The hour-long clock did not expire; the early path finished the race.
	require.Eventually(t, func() bool {
		doc, err := mgr.GetSession(ctx, code)
		return err == nil && doc.Status == model.SessionFinished
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, repo.races, 1)
}
