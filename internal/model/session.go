package model

import "time"

type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

type ParticipantStatus string

const (
	ParticipantCoding     ParticipantStatus = "coding"
	ParticipantValidating ParticipantStatus = "validating"
	ParticipantFinished   ParticipantStatus = "finished"
)

// Identity is the opaque user triple supplied by the identity provider.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Participant is a racer inside a session. Identity fields are a snapshot
// taken at join time and are not live-updated.
type Participant struct {
	ID       string            `json:"id" bson:"id"`
	Name     string            `json:"name" bson:"name"`
	Avatar   string            `json:"avatar" bson:"avatar"`
	Progress int               `json:"progress" bson:"progress"`
	Score    int               `json:"score" bson:"score"`
	Status   ParticipantStatus `json:"status" bson:"status"`
	IsBot    bool              `json:"isBot" bson:"isBot"`
	JoinedAt time.Time         `json:"joinedAt" bson:"joinedAt"`
}

// Scenario is the task description plus ordered checkpoints a race is built
// around.
type Scenario struct {
	TaskDescription string   `json:"taskDescription" bson:"taskDescription"`
	Checkpoints     []string `json:"checkpoints" bson:"checkpoints"`
}

// IsEmpty reports whether no scenario has been published yet.
func (s Scenario) IsEmpty() bool {
	return s.TaskDescription == "" && len(s.Checkpoints) == 0
}

// Session is the shared race document, addressed by a short join code.
// Participant order is join order.
type Session struct {
	Code            string        `json:"code" bson:"code"`
	HostID          string        `json:"hostId" bson:"hostId"`
	Domain          string        `json:"domain" bson:"domain"`
	Status          SessionStatus `json:"status" bson:"status"`
	Participants    []Participant `json:"participants" bson:"participants"`
	TaskDescription string        `json:"taskDescription" bson:"taskDescription"`
	Checkpoints     []string      `json:"checkpoints" bson:"checkpoints"`
	StartTime       *time.Time    `json:"startTime,omitempty" bson:"startTime,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
}

// HasScenario reports whether a task (real or fallback) has been published.
// A race must never start without one.
func (s *Session) HasScenario() bool {
	return s.TaskDescription != "" && len(s.Checkpoints) > 0
}

// FindParticipant returns the index of the participant with the given id,
// or -1 if absent.
func (s *Session) FindParticipant(id string) int {
	for i, p := range s.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the session. Transactional updates operate
// on copies so a retried transaction never sees its own partial mutations.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Participants = make([]Participant, len(s.Participants))
	copy(cp.Participants, s.Participants)
	cp.Checkpoints = make([]string, len(s.Checkpoints))
	copy(cp.Checkpoints, s.Checkpoints)
	if s.StartTime != nil {
		t := *s.StartTime
		cp.StartTime = &t
	}
	return &cp
}
