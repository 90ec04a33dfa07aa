package arena

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"codearena/internal/judge"
	"codearena/internal/model"
	"codearena/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionActive   = errors.New("race already started")
	ErrNotHost         = errors.New("only the host may do that")
	ErrNoScenario      = errors.New("scenario not published yet")
	ErrSessionOver     = errors.New("session already finished")
)

// Manager owns the protocol for creating, joining, leaving, starting, and
// progressing a shared race session. All participant-array mutations go
// through the store's transactional primitive; a plain merge on the array
// would lose concurrent writers.
type Manager struct {
	store store.Store
	judge judge.Judge
}

// NewManager wires the manager to its store and judge. Both are injected
// once at startup; there is no per-call backend switching.
func NewManager(st store.Store, j judge.Judge) *Manager {
	return &Manager{store: st, judge: j}
}

// CreateSession writes a fresh waiting session hosted by host and returns
// its join code. A store outage surfaces as ErrUnavailable, which callers
// treat as "arena disabled", not as retryable.
func (m *Manager) CreateSession(ctx context.Context, host model.Identity, domain string) (string, error) {
	now := time.Now()
	doc := &model.Session{
		HostID: host.ID,
		Domain: domain,
		Status: model.SessionWaiting,
		Participants: []model.Participant{{
			ID:       host.ID,
			Name:     host.Name,
			Avatar:   host.Avatar,
			Status:   model.ParticipantCoding,
			JoinedAt: now,
		}},
		CreatedAt: now,
	}

	// Codes are short-lived; regeneration on the rare collision is enough.
	for attempts := 0; attempts < 10; attempts++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		doc.Code = code
		err = m.store.Create(ctx, code, doc)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrCodeTaken) {
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("failed to generate unique session code")
}

// JoinSession appends user to the session's participants. Re-joining as an
// existing participant is always idempotent, including after the race has
// started, so page reloads never lock a racer out.
func (m *Manager) JoinSession(ctx context.Context, code string, user model.Identity) error {
	return m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if current.FindParticipant(user.ID) >= 0 {
			return nil, nil // already present, nothing to write
		}
		if current.Status != model.SessionWaiting {
			return nil, ErrSessionActive
		}
		next := current.Clone()
		next.Participants = append(next.Participants, model.Participant{
			ID:       user.ID,
			Name:     user.Name,
			Avatar:   user.Avatar,
			Status:   model.ParticipantCoding,
			JoinedAt: time.Now(),
		})
		return next, nil
	})
}

// AddBot appends a simulated participant. Only the practice variant calls
// this, against the in-memory store; bots never reach the shared store.
func (m *Manager) AddBot(ctx context.Context, code string, bot model.Identity) error {
	return m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if current.FindParticipant(bot.ID) >= 0 {
			return nil, nil
		}
		next := current.Clone()
		next.Participants = append(next.Participants, model.Participant{
			ID:       bot.ID,
			Name:     bot.Name,
			Avatar:   bot.Avatar,
			Status:   model.ParticipantCoding,
			IsBot:    true,
			JoinedAt: time.Now(),
		})
		return next, nil
	})
}

// LeaveSession removes the participant by id. Best-effort: absent session
// or participant is a no-op, and a store outage is swallowed — cleanup must
// never block navigation. The session document itself is never deleted here,
// even when the last participant leaves, so late subscribers don't see a
// spurious not-found.
func (m *Manager) LeaveSession(ctx context.Context, code, userID string) error {
	err := m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, nil
		}
		i := current.FindParticipant(userID)
		if i < 0 {
			return nil, nil
		}
		next := current.Clone()
		next.Participants = append(next.Participants[:i], next.Participants[i+1:]...)
		return next, nil
	})
	if errors.Is(err, store.ErrUnavailable) {
		log.Printf("session %s: leave for %s dropped (store unavailable)", code, userID)
		return nil
	}
	return err
}

// SetScenario publishes the task description and checkpoints. Host-only,
// and only while the lobby is still waiting.
func (m *Manager) SetScenario(ctx context.Context, code, hostID string, sc model.Scenario) error {
	doc, err := m.store.Get(ctx, code)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrSessionNotFound
	}
	if doc.HostID != hostID {
		return ErrNotHost
	}
	if doc.Status != model.SessionWaiting {
		return ErrSessionActive
	}
	return m.store.MergeUpdate(ctx, code, store.Patch{
		TaskDescription: &sc.TaskDescription,
		Checkpoints:     sc.Checkpoints,
	})
}

// PublishScenario runs the host generation protocol: ask the judge for a
// scenario and publish it, falling back to the fixed deterministic task on
// any failure so the lobby is never stuck on the upstream.
func (m *Manager) PublishScenario(ctx context.Context, code, hostID, domain string) error {
	sc, err := m.judge.GenerateScenario(ctx, domain)
	if err != nil {
		log.Printf("session %s: scenario generation failed, using fallback: %v", code, err)
		sc = judge.FallbackScenario(domain)
	}
	return m.SetScenario(ctx, code, hostID, *sc)
}

// StartSession transitions waiting -> active and stamps the start time.
// Calling it again while active is a harmless idempotent overwrite of the
// start time; a finished session is rejected — status never regresses, so
// the guard and the write must commit atomically or a concurrent finish
// could be overwritten. A race must never start with an empty scenario.
func (m *Manager) StartSession(ctx context.Context, code, hostID string) error {
	return m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if current.HostID != hostID {
			return nil, ErrNotHost
		}
		if current.Status == model.SessionFinished {
			return nil, ErrSessionOver
		}
		if !current.HasScenario() {
			return nil, ErrNoScenario
		}
		next := current.Clone()
		next.Status = model.SessionActive
		now := time.Now()
		next.StartTime = &now
		return next, nil
	})
}

// UpdateProgress transactionally rewrites one participant's progress and
// status, leaving everyone else's untouched. Progress values are
// client-trusted; regressions are not rejected (preserved behavior).
// A store outage is swallowed — mid-race updates are best-effort.
func (m *Manager) UpdateProgress(ctx context.Context, code, userID string, progress int, status model.ParticipantStatus) error {
	err := m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		i := current.FindParticipant(userID)
		if i < 0 {
			return nil, nil
		}
		next := current.Clone()
		next.Participants[i].Progress = progress
		next.Participants[i].Status = status
		return next, nil
	})
	if errors.Is(err, store.ErrUnavailable) {
		log.Printf("session %s: progress update for %s dropped (store unavailable)", code, userID)
		return nil
	}
	return err
}

// FinishSession transitions active -> finished and returns the final
// ranking. Idempotent: finishing twice returns the same ranking.
func (m *Manager) FinishSession(ctx context.Context, code string) ([]model.RaceRanking, error) {
	var rankings []model.RaceRanking
	err := m.store.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		rankings = Rank(current.Participants)
		if current.Status == model.SessionFinished {
			return nil, nil
		}
		next := current.Clone()
		next.Status = model.SessionFinished
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return rankings, nil
}

// GetSession returns the current document, or ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, code string) (*model.Session, error) {
	doc, err := m.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrSessionNotFound
	}
	return doc, nil
}

// Subscribe forwards store-level change notifications. A nil session tells
// the client the document disappeared and it should reset to the lobby.
func (m *Manager) Subscribe(ctx context.Context, code string, onUpdate func(*model.Session)) (func(), error) {
	return m.store.Subscribe(ctx, code, onUpdate)
}

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode creates a 6-char join code. Not cryptographically defended:
// codes are short-lived and collisions are handled by regeneration.
func generateCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, 6)
	for i := range code {
		code[i] = codeChars[int(b[i])%len(codeChars)]
	}
	return string(code), nil
}
