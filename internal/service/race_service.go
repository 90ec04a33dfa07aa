package service

import (
	"context"
	"log"
	"sync"
	"time"

	"codearena/internal/arena"
	"codearena/internal/cache"
	"codearena/internal/model"
	"codearena/internal/repository"
)

// RaceService drives a race from start to archived result: it starts the
// session, runs the server-side race clock, and on completion persists the
// final ranking and publishes it to the leaderboard.
type RaceService struct {
	mgr         *arena.Manager
	results     repository.ResultRepo
	leaderboard cache.LeaderboardCache

	mu     sync.Mutex
	clocks map[string]*arena.Countdown
}

// NewRaceService creates the service.
func NewRaceService(mgr *arena.Manager, results repository.ResultRepo, leaderboard cache.LeaderboardCache) *RaceService {
	return &RaceService{
		mgr:         mgr,
		results:     results,
		leaderboard: leaderboard,
		clocks:      make(map[string]*arena.Countdown),
	}
}

// StartRace starts the session and arms the race clock. Clock expiry
// finishes the race exactly once; every racer finishing early fires the
// same path through CheckAllFinished.
func (s *RaceService) StartRace(ctx context.Context, code, hostID string, duration time.Duration) error {
	if err := s.mgr.StartSession(ctx, code, hostID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clocks[code]; ok {
		return nil // restart is an idempotent overwrite, clock keeps running
	}
	clock := arena.NewCountdown(duration, nil, func() {
		// Detached context: the request that armed the clock is long gone.
		if err := s.CompleteRace(context.Background(), code); err != nil {
			log.Printf("session %s: completion at clock expiry failed: %v", code, err)
		}
	})
	s.clocks[code] = clock
	clock.Start()
	return nil
}

// CheckAllFinished fires race completion early once every participant
// reports finished. Called after each progress update.
func (s *RaceService) CheckAllFinished(ctx context.Context, code string) {
	doc, err := s.mgr.GetSession(ctx, code)
	if err != nil || doc.Status != model.SessionActive || len(doc.Participants) == 0 {
		return
	}
	for _, p := range doc.Participants {
		if p.Status != model.ParticipantFinished {
			return
		}
	}

	s.mu.Lock()
	clock, ok := s.clocks[code]
	s.mu.Unlock()
	if ok {
		clock.Expire()
	} else if err := s.CompleteRace(ctx, code); err != nil {
		log.Printf("session %s: early completion failed: %v", code, err)
	}
}

// CompleteRace transitions the session to finished, archives the result,
// and publishes the leaderboard. Safe to call twice.
func (s *RaceService) CompleteRace(ctx context.Context, code string) error {
	doc, err := s.mgr.GetSession(ctx, code)
	if err != nil {
		return err
	}
	alreadyFinished := doc.Status == model.SessionFinished

	rankings, err := s.mgr.FinishSession(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if clock, ok := s.clocks[code]; ok {
		clock.Stop()
		delete(s.clocks, code)
	}
	s.mu.Unlock()

	if alreadyFinished {
		return nil
	}

	for _, r := range rankings {
		if err := s.leaderboard.UpdateScore(ctx, code, r.UserID, r.Progress); err != nil {
			log.Printf("session %s: leaderboard update for %s failed: %v", code, r.UserID, err)
		}
	}

	result := &model.RaceResult{
		Code:       code,
		Domain:     doc.Domain,
		Rankings:   rankings,
		FinishedAt: time.Now(),
	}
	if err := s.results.SaveRaceResult(ctx, result); err != nil {
		log.Printf("session %s: race result not persisted: %v", code, err)
	}
	return nil
}

// Leaderboard returns the top entries for a session.
func (s *RaceService) Leaderboard(ctx context.Context, code string, limit int) ([]cache.LeaderboardEntry, error) {
	return s.leaderboard.GetTop(ctx, code, limit)
}

// Rank returns one racer's final leaderboard position, or -1 before the
// race has completed (scores are only published at completion).
func (s *RaceService) Rank(ctx context.Context, code, userID string) (int64, error) {
	return s.leaderboard.GetRank(ctx, code, userID)
}
