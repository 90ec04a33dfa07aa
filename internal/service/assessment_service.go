package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codearena/internal/judge"
	"codearena/internal/model"
	"codearena/internal/proctor"
	"codearena/internal/repository"
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAssessmentClosed   = errors.New("assessment already concluded")
)

// ViolationEvent is one integrity signal reported by the client while an
// assessment is active.
type ViolationEvent struct {
	Type      string `json:"type"` // visibility_hidden, visibility_shown, blur, clipboard, snapshot
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
	Action    string `json:"action,omitempty"` // clipboard: copy, cut, paste
	Frame     string `json:"frame,omitempty"`  // snapshot: base64 camera frame
}

// EventAck tells the client where it stands after each reported event.
type EventAck struct {
	Disqualified  bool   `json:"disqualified"`
	TabSwitches   int    `json:"tabSwitches"`
	Pastes        int    `json:"pastes"`
	FocusLostMs   int64  `json:"focusLostMs"`
	EnvViolations int    `json:"envViolations"`
	Feedback      string `json:"feedback,omitempty"`
}

type assessmentInstance struct {
	userID  string
	flow    model.AssessmentFlow
	task    string
	monitor *proctor.Monitor
	closed  bool
}

// AssessmentService runs the integrity gate for trial, interview, and exam
// flows: one proctoring monitor per active instance, grading delegated to
// the AI judge only after the local gate passes.
type AssessmentService struct {
	judge   judge.Judge
	results repository.ResultRepo

	mu        sync.Mutex
	instances map[string]*assessmentInstance
}

// NewAssessmentService creates the service.
func NewAssessmentService(j judge.Judge, results repository.ResultRepo) *AssessmentService {
	return &AssessmentService{
		judge:     j,
		results:   results,
		instances: make(map[string]*assessmentInstance),
	}
}

// Begin opens a new assessment instance and returns its id. The monitor's
// thresholds come from the flow.
func (s *AssessmentService) Begin(userID string, flow model.AssessmentFlow, task string) string {
	id := "a_" + uuid.New().String()[:8]
	s.mu.Lock()
	s.instances[id] = &assessmentInstance{
		userID:  userID,
		flow:    flow,
		task:    task,
		monitor: proctor.NewMonitor(proctor.ThresholdsFor(flow)),
	}
	s.mu.Unlock()
	return id
}

// RecordEvent feeds one violation signal into the instance's monitor.
// Snapshot events route the frame through the judge's environment analysis;
// if that call fails after its retry the frame is skipped — an upstream
// outage must never manufacture violations.
func (s *AssessmentService) RecordEvent(ctx context.Context, id string, ev ViolationEvent) (*EventAck, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}

	var feedback string
	switch ev.Type {
	case "visibility_hidden":
		inst.monitor.VisibilityHidden()
	case "visibility_shown":
		inst.monitor.VisibilityShown(time.Duration(ev.ElapsedMs) * time.Millisecond)
	case "blur":
		inst.monitor.Blur()
	case "clipboard":
		inst.monitor.Clipboard(ev.Action)
	case "snapshot":
		report, err := s.judge.AnalyzeEnvironment(ctx, ev.Frame)
		if err != nil {
			log.Printf("assessment %s: environment check skipped: %v", id, err)
			break
		}
		inst.monitor.Environment(*report)
		feedback = report.Feedback
	}

	tabSwitches, pastes, focusLost, envViolations := inst.monitor.Counts()
	return &EventAck{
		Disqualified:  inst.monitor.Disqualified(),
		TabSwitches:   tabSwitches,
		Pastes:        pastes,
		FocusLostMs:   focusLost.Milliseconds(),
		EnvViolations: envViolations,
		Feedback:      feedback,
	}, nil
}

// GradeRound grades one round of a round-scoped flow (interview/exam). Any
// violation accumulated this round forces the round score to zero without
// consulting the judge. The round list resets afterwards.
func (s *AssessmentService) GradeRound(ctx context.Context, id, question, answer string) (*model.GradeResult, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}

	if void, reasons := inst.monitor.RoundVoid(); void {
		inst.monitor.BeginRound()
		return &model.GradeResult{
			Score:    model.VoidScore,
			Feedback: "Round voided: " + strings.Join(reasons, "; "),
			Passed:   false,
		}, nil
	}
	inst.monitor.BeginRound()

	result, err := s.judge.GradeSubmission(ctx, question, answer)
	if err != nil {
		log.Printf("assessment %s: round grading unavailable, applying penalty: %v", id, err)
		return judge.FallbackGrade(), nil
	}
	return result, nil
}

// Submit concludes the assessment. The integrity verdict is decided first,
// from local counters alone; only work that passes the gate is sent to the
// judge for scoring. The resulting verdict is persisted and the instance is
// closed — no retake of this instance is possible.
func (s *AssessmentService) Submit(ctx context.Context, id, submission string) (*model.AssessmentVerdict, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if inst.closed {
		s.mu.Unlock()
		return nil, ErrAssessmentClosed
	}
	inst.closed = true
	s.mu.Unlock()

	verdict := &model.AssessmentVerdict{
		UserID:     inst.userID,
		Flow:       inst.flow,
		FinishedAt: time.Now(),
	}

	pv := inst.monitor.Verdict()
	if pv.Void {
		verdict.Void = true
		verdict.Score = model.VoidScore
		verdict.Reasons = pv.Reasons
		verdict.Feedback = "Assessment voided: " + strings.Join(pv.Reasons, "; ")
	} else {
		grade, err := s.judge.GradeSubmission(ctx, inst.task, submission)
		if err != nil {
			log.Printf("assessment %s: grading unavailable, applying penalty: %v", id, err)
			grade = judge.FallbackGrade()
		}
		verdict.Score = grade.Score
		verdict.Feedback = grade.Feedback
	}

	if err := s.results.SaveVerdict(ctx, verdict); err != nil {
		log.Printf("assessment %s: verdict not persisted: %v", id, err)
	}

	s.mu.Lock()
	delete(s.instances, id)
	s.mu.Unlock()

	return verdict, nil
}

// History returns the user's stored verdicts, newest first.
func (s *AssessmentService) History(ctx context.Context, userID string) ([]model.AssessmentVerdict, error) {
	return s.results.ListVerdictsByUser(ctx, userID)
}

func (s *AssessmentService) instance(id string) (*assessmentInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	if inst.closed {
		return nil, ErrAssessmentClosed
	}
	return inst, nil
}
