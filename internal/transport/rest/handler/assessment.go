package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"codearena/internal/model"
	"codearena/internal/service"
)

// AssessmentHandler handles proctored assessment endpoints. The assessment id
// returned by Begin acts as the capability for all follow-up calls.
type AssessmentHandler struct {
	svc *service.AssessmentService
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(svc *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{svc: svc}
}

// BeginRequest is the request body for starting an assessment
type BeginRequest struct {
	UserID string               `json:"userId"`
	Flow   model.AssessmentFlow `json:"flow"`
	Task   string               `json:"task"`
}

// Begin handles POST /v1/assessments
func (h *AssessmentHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	switch req.Flow {
	case model.FlowTrial, model.FlowInterview, model.FlowExam, model.FlowArena:
	default:
		writeError(w, http.StatusBadRequest, "flow must be trial, interview, exam or arena")
		return
	}

	id := h.svc.Begin(req.UserID, req.Flow, req.Task)
	writeJSON(w, http.StatusCreated, map[string]string{"assessmentId": id})
}

// RecordEvent handles POST /v1/assessments/{id}/events
func (h *AssessmentHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var ev service.ViolationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ack, err := h.svc.RecordEvent(r.Context(), id, ev)
	if err != nil {
		writeAssessmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// RoundRequest is the request body for grading one interview/exam round
type RoundRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GradeRound handles POST /v1/assessments/{id}/rounds
func (h *AssessmentHandler) GradeRound(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.GradeRound(r.Context(), id, req.Question, req.Answer)
	if err != nil {
		writeAssessmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmitRequest is the request body for final submission
type SubmitRequest struct {
	Submission string `json:"submission"`
}

// Submit handles POST /v1/assessments/{id}/submit
func (h *AssessmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict, err := h.svc.Submit(r.Context(), id, req.Submission)
	if err != nil {
		writeAssessmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// History handles GET /v1/assessments/history/{userId}
func (h *AssessmentHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	verdicts, err := h.svc.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if verdicts == nil {
		verdicts = []model.AssessmentVerdict{}
	}
	writeJSON(w, http.StatusOK, verdicts)
}

func writeAssessmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		writeError(w, http.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrAssessmentClosed):
		writeError(w, http.StatusConflict, "assessment already concluded")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
