package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codearena/internal/judge"
	"codearena/internal/model"
)

// fakeJudge lets each test script the grading outcome.
type fakeJudge struct {
	fail        bool
	grade       *model.GradeResult
	environment *model.EnvironmentReport
	gradeCalls  int
}

func (f *fakeJudge) GenerateScenario(ctx context.Context, domain string) (*model.Scenario, error) {
	if f.fail {
		return nil, judge.ErrUnavailable
	}
	return judge.FallbackScenario(domain), nil
}

func (f *fakeJudge) GradeSubmission(ctx context.Context, task, submission string) (*model.GradeResult, error) {
	f.gradeCalls++
	if f.fail {
		return nil, judge.ErrUnavailable
	}
	if f.grade != nil {
		return f.grade, nil
	}
	return &model.GradeResult{Score: 85, Feedback: "good", Passed: true}, nil
}

func (f *fakeJudge) AnalyzeEnvironment(ctx context.Context, frame string) (*model.EnvironmentReport, error) {
	if f.fail {
		return nil, judge.ErrUnavailable
	}
	if f.environment != nil {
		return f.environment, nil
	}
	return &model.EnvironmentReport{Lighting: true, SinglePerson: true, NoDevices: true}, nil
}

// fakeResultRepo keeps saved documents in memory.
type fakeResultRepo struct {
	races    []*model.RaceResult
	verdicts []*model.AssessmentVerdict
}

func (f *fakeResultRepo) SaveRaceResult(ctx context.Context, result *model.RaceResult) error {
	f.races = append(f.races, result)
	return nil
}

func (f *fakeResultRepo) GetRaceResult(ctx context.Context, code string) (*model.RaceResult, error) {
	for _, r := range f.races {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeResultRepo) SaveVerdict(ctx context.Context, verdict *model.AssessmentVerdict) error {
	f.verdicts = append(f.verdicts, verdict)
	return nil
}

func (f *fakeResultRepo) ListVerdictsByUser(ctx context.Context, userID string) ([]model.AssessmentVerdict, error) {
	var out []model.AssessmentVerdict
	for _, v := range f.verdicts {
		if v.UserID == userID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func TestAssessmentService_CleanSubmit(t *testing.T) {
	ctx := context.Background()
	repo := &fakeResultRepo{}
	svc := NewAssessmentService(&fakeJudge{}, repo)

	id := svc.Begin("u1", model.FlowTrial, "build a queue")

	verdict, err := svc.Submit(ctx, id, "my solution")
	require.NoError(t, err)
	assert.False(t, verdict.Void)
	assert.Equal(t, 85, verdict.Score)
	require.Len(t, repo.verdicts, 1)

	t.Run("instance is closed after submit", func(t *testing.T) {
		_, err := svc.Submit(ctx, id, "again")
		assert.Error(t, err)
	})

	t.Run("unknown instance", func(t *testing.T) {
		_, err := svc.Submit(ctx, "a_nope", "x")
		assert.ErrorIs(t, err, ErrAssessmentNotFound)
	})
}

func TestAssessmentService_VoidSkipsGrading(t *testing.T) {
	ctx := context.Background()
	j := &fakeJudge{}
	svc := NewAssessmentService(j, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowTrial, "task")
	for i := 0; i < 3; i++ {
		_, err := svc.RecordEvent(ctx, id, ViolationEvent{Type: "visibility_hidden"})
		require.NoError(t, err)
	}

	verdict, err := svc.Submit(ctx, id, "solution")
	require.NoError(t, err)
	assert.True(t, verdict.Void)
	assert.Equal(t, model.VoidScore, verdict.Score)
	assert.NotEmpty(t, verdict.Reasons)
	// A voided assessment never reaches the grader.
	assert.Equal(t, 0, j.gradeCalls)
}

func TestAssessmentService_GradingOutagePenalty(t *testing.T) {
	ctx := context.Background()
	svc := NewAssessmentService(&fakeJudge{fail: true}, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowTrial, "task")
	verdict, err := svc.Submit(ctx, id, "solution")
	require.NoError(t, err)

	// The submission is accepted, the unscorable work gets the penalty grade.
	assert.False(t, verdict.Void)
	assert.Equal(t, 0, verdict.Score)
	assert.NotEmpty(t, verdict.Feedback)
}

func TestAssessmentService_SnapshotOutageIsSkipped(t *testing.T) {
	ctx := context.Background()
	svc := NewAssessmentService(&fakeJudge{fail: true}, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowTrial, "task")
	ack, err := svc.RecordEvent(ctx, id, ViolationEvent{Type: "snapshot", Frame: "ZnJhbWU="})
	require.NoError(t, err)

	// An analysis outage must never manufacture violations.
	assert.Equal(t, 0, ack.EnvViolations)
	assert.False(t, ack.Disqualified)
}

func TestAssessmentService_EnvironmentFlagsCount(t *testing.T) {
	ctx := context.Background()
	j := &fakeJudge{environment: &model.EnvironmentReport{
		Lighting:     false,
		SinglePerson: true,
		NoDevices:    false,
		Feedback:     "move the phone away",
	}}
	svc := NewAssessmentService(j, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowTrial, "task")
	ack, err := svc.RecordEvent(ctx, id, ViolationEvent{Type: "snapshot", Frame: "ZnJhbWU="})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.EnvViolations)
	assert.Equal(t, "move the phone away", ack.Feedback)
}

func TestAssessmentService_RoundScopedGrading(t *testing.T) {
	ctx := context.Background()
	j := &fakeJudge{grade: &model.GradeResult{Score: 72, Passed: true}}
	svc := NewAssessmentService(j, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowInterview, "task")

	t.Run("violated round scores zero without the judge", func(t *testing.T) {
		_, err := svc.RecordEvent(ctx, id, ViolationEvent{Type: "blur"})
		require.NoError(t, err)

		result, err := svc.GradeRound(ctx, id, "q1", "answer")
		require.NoError(t, err)
		assert.Equal(t, model.VoidScore, result.Score)
		assert.False(t, result.Passed)
		assert.Equal(t, 0, j.gradeCalls)
	})

	t.Run("next round starts clean", func(t *testing.T) {
		result, err := svc.GradeRound(ctx, id, "q2", "answer")
		require.NoError(t, err)
		assert.Equal(t, 72, result.Score)
		assert.Equal(t, 1, j.gradeCalls)
	})
}

func TestAssessmentService_Disqualification(t *testing.T) {
	ctx := context.Background()
	svc := NewAssessmentService(&fakeJudge{}, &fakeResultRepo{})

	id := svc.Begin("u1", model.FlowExam, "task")

	var ack *EventAck
	for i := 0; i < 5; i++ {
		var err error
		ack, err = svc.RecordEvent(ctx, id, ViolationEvent{Type: "blur"})
		require.NoError(t, err)
	}
	// The fifth event crosses the cap; the client learns immediately.
	assert.True(t, ack.Disqualified)

	verdict, err := svc.Submit(ctx, id, "solution")
	require.NoError(t, err)
	assert.True(t, verdict.Void)
	assert.Equal(t, model.VoidScore, verdict.Score)
}

func TestAssessmentService_History(t *testing.T) {
	ctx := context.Background()
	repo := &fakeResultRepo{}
	svc := NewAssessmentService(&fakeJudge{}, repo)

	id := svc.Begin("u1", model.FlowTrial, "task")
	_, err := svc.Submit(ctx, id, "solution")
	require.NoError(t, err)

	verdicts, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, verdicts, 1)

	none, err := svc.History(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
