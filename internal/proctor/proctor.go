package proctor

import (
	"fmt"
	"sync"
	"time"

	"codearena/internal/model"
)

type ViolationKind string

const (
	ViolationTabSwitch   ViolationKind = "tab_switch"
	ViolationBlur        ViolationKind = "blur"
	ViolationClipboard   ViolationKind = "clipboard"
	ViolationEnvironment ViolationKind = "environment"
)

// Violation is one discrete integrity-breaking event.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// Thresholds configure the verdict function per assessment flow.
type Thresholds struct {
	MaxTabSwitches           int
	MaxPastes                int
	MaxFocusLost             time.Duration
	MaxEnvironmentViolations int

	// StrictBlur counts any window blur as an immediate violation
	// (interview/exam). The looser variant only counts focus loss through
	// visibility changes (trial).
	StrictBlur bool

	// RoundScoped resets the working violation list every round; any round
	// violation voids that round's score.
	RoundScoped bool

	// MaxSessionViolations disqualifies the whole assessment once the
	// session-wide list reaches this count. Checked on every event, not at
	// submission. Zero disables the cap.
	MaxSessionViolations int
}

// TrialThresholds: session-scoped, tolerant of brief focus loss.
func TrialThresholds() Thresholds {
	return Thresholds{
		MaxTabSwitches:           2,
		MaxPastes:                0,
		MaxFocusLost:             5 * time.Second,
		MaxEnvironmentViolations: 2,
	}
}

// InterviewThresholds: round-scoped, any violation zeroes the round.
func InterviewThresholds() Thresholds {
	return Thresholds{
		StrictBlur:           true,
		RoundScoped:          true,
		MaxSessionViolations: 5,
	}
}

// ExamThresholds: like interview, disqualification cap included.
func ExamThresholds() Thresholds {
	return Thresholds{
		StrictBlur:           true,
		RoundScoped:          true,
		MaxSessionViolations: 5,
	}
}

// ThresholdsFor maps an assessment flow to its configured thresholds.
// The arena race reuses the trial profile.
func ThresholdsFor(flow model.AssessmentFlow) Thresholds {
	switch flow {
	case model.FlowInterview:
		return InterviewThresholds()
	case model.FlowExam:
		return ExamThresholds()
	default:
		return TrialThresholds()
	}
}

// Verdict is the terminal integrity outcome. Void forces the sentinel zero
// score regardless of any concurrently-succeeding AI grade.
type Verdict struct {
	Void         bool        `json:"void"`
	Disqualified bool        `json:"disqualified"`
	Reasons      []string    `json:"reasons,omitempty"`
	Violations   []Violation `json:"violations,omitempty"`
}

// Monitor accumulates violations for one assessment instance and judges
// them against its thresholds. All decisions are local counters so a void
// verdict stays reachable even when the AI judge is down.
type Monitor struct {
	mu sync.Mutex

	thresholds Thresholds

	tabSwitches   int
	pastes        int
	focusLost     time.Duration
	envViolations int

	round   []Violation
	session []Violation

	disqualified bool
	frozen       bool
}

// NewMonitor creates a monitor for one assessment instance.
func NewMonitor(t Thresholds) *Monitor {
	return &Monitor{thresholds: t}
}

// VisibilityHidden records the tab going hidden.
func (m *Monitor) VisibilityHidden() {
	m.record(Violation{Kind: ViolationTabSwitch, Reason: "switched away from the assessment tab", At: time.Now()}, func() {
		m.tabSwitches++
	})
}

// VisibilityShown records the tab coming back after elapsed hidden time.
func (m *Monitor) VisibilityShown(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || m.disqualified {
		return
	}
	m.focusLost += elapsed
}

// Blur records a window focus loss. Only the strict variant treats it as a
// violation in its own right.
func (m *Monitor) Blur() {
	if !m.thresholds.StrictBlur {
		return
	}
	m.record(Violation{Kind: ViolationBlur, Reason: "assessment window lost focus", At: time.Now()}, func() {
		m.tabSwitches++
	})
}

// Clipboard records a copy/cut/paste attempt. The UI cancels the default
// action; the attempt itself still counts.
func (m *Monitor) Clipboard(action string) {
	m.record(Violation{Kind: ViolationClipboard, Reason: fmt.Sprintf("clipboard %s attempt", action), At: time.Now()}, func() {
		m.pastes++
	})
}

// Environment records a camera snapshot analysis. Each false sub-flag is one
// environment violation.
func (m *Monitor) Environment(report model.EnvironmentReport) {
	if !report.Lighting {
		m.record(Violation{Kind: ViolationEnvironment, Reason: "face not clearly visible", At: time.Now()}, func() {
			m.envViolations++
		})
	}
	if !report.SinglePerson {
		m.record(Violation{Kind: ViolationEnvironment, Reason: "more than one person in frame", At: time.Now()}, func() {
			m.envViolations++
		})
	}
	if !report.NoDevices {
		m.record(Violation{Kind: ViolationEnvironment, Reason: "unauthorized device in frame", At: time.Now()}, func() {
			m.envViolations++
		})
	}
}

// record appends a violation, applies its counter bump, and checks the
// session disqualification cap. Frozen or disqualified monitors discard
// all further input.
func (m *Monitor) record(v Violation, bump func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || m.disqualified {
		return
	}
	bump()
	m.session = append(m.session, v)
	if m.thresholds.RoundScoped {
		m.round = append(m.round, v)
	}
	if limit := m.thresholds.MaxSessionViolations; limit > 0 && len(m.session) >= limit {
		m.disqualified = true
	}
}

// Disqualified reports whether the session cap was crossed. Once true the
// whole assessment is terminally failed and discards further input.
func (m *Monitor) Disqualified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disqualified
}

// BeginRound clears round-scoped violations for the next graded unit.
func (m *Monitor) BeginRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || m.disqualified {
		return
	}
	m.round = nil
}

// RoundVoid reports whether the current round accumulated any violation,
// with reasons. Round-scoped flows zero the round's score when true.
func (m *Monitor) RoundVoid() (bool, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.round) == 0 && !m.disqualified {
		return false, nil
	}
	return true, reasonsOf(m.round)
}

// Verdict judges the accumulated state against the thresholds and freezes
// the monitor. It is a pure function of the counts: feeding the same event
// sequence always produces the same verdict.
func (m *Monitor) Verdict() Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true

	v := Verdict{Violations: append([]Violation(nil), m.session...)}

	if m.disqualified {
		v.Void = true
		v.Disqualified = true
		v.Reasons = append(v.Reasons, fmt.Sprintf("accumulated %d violations (limit %d)",
			len(m.session), m.thresholds.MaxSessionViolations))
		return v
	}

	t := m.thresholds
	if m.tabSwitches > t.MaxTabSwitches {
		v.Reasons = append(v.Reasons, fmt.Sprintf("switched tabs %d times (limit %d)", m.tabSwitches, t.MaxTabSwitches))
	}
	if m.pastes > t.MaxPastes {
		v.Reasons = append(v.Reasons, fmt.Sprintf("used the clipboard %d times (limit %d)", m.pastes, t.MaxPastes))
	}
	if t.MaxFocusLost > 0 && m.focusLost > t.MaxFocusLost {
		v.Reasons = append(v.Reasons, fmt.Sprintf("window unfocused for %v (limit %v)", m.focusLost.Round(time.Millisecond), t.MaxFocusLost))
	}
	if m.envViolations > t.MaxEnvironmentViolations {
		v.Reasons = append(v.Reasons, fmt.Sprintf("%d environment violations (limit %d)", m.envViolations, t.MaxEnvironmentViolations))
	}
	if t.RoundScoped && len(m.round) > 0 {
		v.Reasons = append(v.Reasons, reasonsOf(m.round)...)
	}

	v.Void = len(v.Reasons) > 0
	return v
}

// Counts returns the derived counters, mostly for surfacing live state to
// the client.
func (m *Monitor) Counts() (tabSwitches, pastes int, focusLost time.Duration, envViolations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabSwitches, m.pastes, m.focusLost, m.envViolations
}

func reasonsOf(violations []Violation) []string {
	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Reason)
	}
	return reasons
}
