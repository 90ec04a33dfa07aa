package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codearena/internal/config"
	"codearena/internal/judge"
	"codearena/internal/model"
	"codearena/internal/service"
)

type memResultRepo struct {
	verdicts []*model.AssessmentVerdict
}

func (m *memResultRepo) SaveRaceResult(ctx context.Context, result *model.RaceResult) error {
	return nil
}

func (m *memResultRepo) GetRaceResult(ctx context.Context, code string) (*model.RaceResult, error) {
	return nil, nil
}

func (m *memResultRepo) SaveVerdict(ctx context.Context, verdict *model.AssessmentVerdict) error {
	m.verdicts = append(m.verdicts, verdict)
	return nil
}

func (m *memResultRepo) ListVerdictsByUser(ctx context.Context, userID string) ([]model.AssessmentVerdict, error) {
	return nil, nil
}

func newAssessmentRouter(t *testing.T) *mux.Router {
	t.Helper()
	cfg := config.DefaultAIConfig()
	cfg.APIKey = "" // mock judge
	svc := service.NewAssessmentService(judge.NewGeminiJudge(cfg), &memResultRepo{})
	h := NewAssessmentHandler(svc)

	r := mux.NewRouter()
	r.HandleFunc("/v1/assessments", h.Begin).Methods("POST")
	return r
}

func TestAssessmentHandler_BeginFlows(t *testing.T) {
	router := newAssessmentRouter(t)

	// Every graded flow opens an instance, including the arena race, which
	// proctors with the trial profile.
	for _, flow := range []model.AssessmentFlow{
		model.FlowTrial, model.FlowInterview, model.FlowExam, model.FlowArena,
	} {
		t.Run(string(flow), func(t *testing.T) {
			body := `{"userId":"u1","flow":"` + string(flow) + `","task":"t"}`
			req := httptest.NewRequest("POST", "/v1/assessments", strings.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Contains(t, rec.Body.String(), "assessmentId")
		})
	}

	t.Run("unknown flow is rejected", func(t *testing.T) {
		body := `{"userId":"u1","flow":"osmosis","task":"t"}`
		req := httptest.NewRequest("POST", "/v1/assessments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing user is rejected", func(t *testing.T) {
		body := `{"flow":"trial","task":"t"}`
		req := httptest.NewRequest("POST", "/v1/assessments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
