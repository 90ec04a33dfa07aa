package arena

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"codearena/internal/model"
)

// Countdown ticks once per second and fires onExpire exactly once when it
// reaches zero. Stop and a natural expiry may race; the sync.Once guarantees
// a double-fire never double-submits.
type Countdown struct {
	remaining time.Duration
	onTick    func(remaining time.Duration)
	onExpire  func()

	expireOnce sync.Once
	stopOnce   sync.Once
	stop       chan struct{}
}

// NewCountdown creates a countdown for the given duration. onTick may be nil.
func NewCountdown(d time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	return &Countdown{
		remaining: d,
		onTick:    onTick,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
}

// Start runs the countdown in its own goroutine.
func (c *Countdown) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.remaining -= time.Second
				if c.onTick != nil {
					c.onTick(c.remaining)
				}
				if c.remaining <= 0 {
					c.expireOnce.Do(c.onExpire)
					return
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop cancels the countdown without firing expiry. Safe to call twice.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Expire fires the expiry callback immediately if it hasn't fired yet.
// Used when every racer finishes before the clock runs out.
func (c *Countdown) Expire() {
	c.Stop()
	c.expireOnce.Do(c.onExpire)
}

// Rank orders participants by progress descending. Ties keep join order:
// the sort is stable and participants arrive in join order. Score is
// tracked but deliberately unused as a tiebreak.
func Rank(participants []model.Participant) []model.RaceRanking {
	sorted := make([]model.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Progress > sorted[j].Progress
	})

	rankings := make([]model.RaceRanking, len(sorted))
	for i, p := range sorted {
		rankings[i] = model.RaceRanking{
			Rank:     i + 1,
			UserID:   p.ID,
			Name:     p.Name,
			Progress: p.Progress,
			Score:    p.Score,
		}
	}
	return rankings
}

// BotSimulator emulates peers for the unauthenticated practice variant.
// Each bot advances by a bounded random increment on its own random
// schedule — not every tick — so practice races feel like real opponents.
// Bots only ever run against the in-memory store; they are never persisted
// to the shared deployment store.
type BotSimulator struct {
	mgr  *Manager
	code string
	rng  *rand.Rand
}

// PracticeBots returns the default opponents for a practice race.
func PracticeBots() []model.Identity {
	return []model.Identity{
		{ID: "bot_turbo", Name: "Turbo", Avatar: "🤖"},
		{ID: "bot_crash", Name: "Crash", Avatar: "👾"},
		{ID: "bot_pixel", Name: "Pixel", Avatar: "🛸"},
	}
}

// NewBotSimulator creates a simulator for the given practice session.
func NewBotSimulator(mgr *Manager, code string, seed int64) *BotSimulator {
	return &BotSimulator{
		mgr:  mgr,
		code: code,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// botIncrement returns a bounded progress step, 5-15 inclusive.
func botIncrement(rng *rand.Rand) int {
	return 5 + rng.Intn(11)
}

// botDelay returns a wait between a bot's updates, 2-6s.
func botDelay(rng *rand.Rand) time.Duration {
	return time.Duration(2+rng.Intn(5)) * time.Second
}

// Run joins the bots into the lobby, waits for the race to go live, then
// drives each bot until it finishes or ctx is cancelled. Bots report progress
// through the same manager operations real clients use.
func (b *BotSimulator) Run(ctx context.Context, bots []model.Identity) {
	joined := bots[:0]
	for _, bot := range bots {
		if err := b.mgr.AddBot(ctx, b.code, bot); err == nil {
			joined = append(joined, bot)
		}
	}
	if len(joined) == 0 {
		return
	}

	if !b.waitForStart(ctx) {
		return
	}

	var wg sync.WaitGroup
	for _, bot := range joined {

		wg.Add(1)
		go func(id string, seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			progress := 0
			for progress < 100 {
				select {
				case <-time.After(botDelay(rng)):
				case <-ctx.Done():
					return
				}
				progress += botIncrement(rng)
				status := model.ParticipantCoding
				if progress >= 100 {
					progress = 100
					status = model.ParticipantFinished
				}
				_ = b.mgr.UpdateProgress(ctx, b.code, id, progress, status)
			}
		}(bot.ID, b.rng.Int63())
	}
	wg.Wait()
}

// waitForStart polls until the session goes active. Returns false if the
// session disappears, finishes without starting, or ctx is cancelled.
func (b *BotSimulator) waitForStart(ctx context.Context) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			doc, err := b.mgr.GetSession(ctx, b.code)
			if err != nil {
				return false
			}
			switch doc.Status {
			case model.SessionActive:
				return true
			case model.SessionFinished:
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}
