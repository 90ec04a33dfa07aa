package judge

import (
	"context"
	"errors"
	"fmt"

	"codearena/internal/model"
)

// ErrUnavailable means the generation service failed after all retries.
// Callers fall back (deterministic scenario, penalized grade) and never
// propagate this as a crash.
var ErrUnavailable = errors.New("judge service unavailable")

// Judge is the boundary to the external generation/grading service. Every
// implementation must treat the upstream as unreliable: calls time out, are
// retried per policy, and report ErrUnavailable once retries exhaust.
type Judge interface {
	// GenerateScenario produces a race task for a topic domain.
	GenerateScenario(ctx context.Context, domain string) (*model.Scenario, error)

	// GradeSubmission scores submitted work against a task description.
	GradeSubmission(ctx context.Context, task, submission string) (*model.GradeResult, error)

	// AnalyzeEnvironment checks a camera frame (base64) for proctoring
	// flags. Latency-sensitive: single retry with a fixed delay.
	AnalyzeEnvironment(ctx context.Context, frame string) (*model.EnvironmentReport, error)
}

// FallbackScenario is the fixed deterministic scenario published when
// generation fails, so a lobby is never stuck waiting on the upstream.
func FallbackScenario(domain string) *model.Scenario {
	return &model.Scenario{
		TaskDescription: fmt.Sprintf(
			"Implement a rate limiter for %s requests: allow at most N calls per rolling second, rejecting the rest.",
			domain),
		Checkpoints: []string{
			"Define the limiter interface and its configuration",
			"Track request timestamps within the rolling window",
			"Reject calls once the window is full",
			"Evict expired timestamps as the window slides",
			"Handle concurrent callers safely",
		},
	}
}

// FallbackGrade is the penalized score applied when grading is unreachable.
// The submission was accepted, but the judge could not vouch for it.
func FallbackGrade() *model.GradeResult {
	return &model.GradeResult{
		Score:    0,
		Feedback: "Automatic grading was unavailable; the submission was recorded without a score.",
		Passed:   false,
	}
}
