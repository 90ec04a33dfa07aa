package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"codearena/internal/arena"
	"codearena/internal/model"
	"codearena/internal/service"
	"codearena/internal/store"
	"codearena/internal/transport/rest/middleware"
)

// ArenaHandler handles live challenge session endpoints
type ArenaHandler struct {
	mgr          *arena.Manager
	raceSvc      *service.RaceService
	authSvc      *service.AuthService
	raceDuration time.Duration
	practiceBots bool
}

// NewArenaHandler creates a new arena handler
func NewArenaHandler(mgr *arena.Manager, raceSvc *service.RaceService, authSvc *service.AuthService, raceDuration time.Duration, practiceBots bool) *ArenaHandler {
	return &ArenaHandler{
		mgr:          mgr,
		raceSvc:      raceSvc,
		authSvc:      authSvc,
		raceDuration: raceDuration,
		practiceBots: practiceBots,
	}
}

// CreateSessionRequest is the request body for creating a session
type CreateSessionRequest struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Create handles POST /v1/sessions. The host enters the lobby immediately;
// scenario generation runs in the background and publishes either the real
// scenario or the deterministic fallback.
func (h *ArenaHandler) Create(w http.ResponseWriter, r *http.Request) {
	hostID := middleware.GetHostID(r.Context())

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	host := model.Identity{ID: hostID, Name: req.Name, Avatar: req.Avatar}
	code, err := h.mgr.CreateSession(r.Context(), host, req.Domain)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			// Not retryable from the client's perspective: the arena
			// feature is disabled until the store comes back.
			writeError(w, http.StatusServiceUnavailable, "live arena is currently unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.mgr.PublishScenario(ctx, code, hostID, req.Domain); err != nil {
			log.Printf("session %s: scenario publication failed: %v", code, err)
		}
	}()

	if h.practiceBots {
		go func() {
			// Bots need enough runway to join, wait for the start, and race.
			ctx, cancel := context.WithTimeout(context.Background(), h.raceDuration+30*time.Minute)
			defer cancel()
			arena.NewBotSimulator(h.mgr, code, time.Now().UnixNano()).Run(ctx, arena.PracticeBots())
		}()
	}

	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// Get handles GET /v1/sessions/{code}
func (h *ArenaHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	doc, err := h.mgr.GetSession(r.Context(), code)
	if err != nil {
		if errors.Is(err, arena.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	UserID string `json:"userId,omitempty"` // set on re-join after reload
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Join handles POST /v1/sessions/{code}/join
func (h *ArenaHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = "u_" + uuid.New().String()[:8]
	}

	user := model.Identity{ID: userID, Name: req.Name, Avatar: req.Avatar}
	if err := h.mgr.JoinSession(r.Context(), code, user); err != nil {
		switch {
		case errors.Is(err, arena.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "no session with that code")
		case errors.Is(err, arena.ErrSessionActive):
			writeError(w, http.StatusConflict, "the race has already started")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	token, err := h.authSvc.GenerateParticipantToken(code, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	doc, err := h.mgr.GetSession(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &model.JoinResponse{
		ParticipantID: userID,
		Token:         token,
		Session:       doc,
	})
}

// Leave handles POST /v1/sessions/{code}/leave. Best-effort cleanup: always
// acknowledged, even when the store is down.
func (h *ArenaHandler) Leave(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	userID := middleware.GetParticipantID(r.Context())

	if middleware.GetSessionCode(r.Context()) != code {
		writeError(w, http.StatusForbidden, "token not valid for this session")
		return
	}

	if err := h.mgr.LeaveSession(r.Context(), code, userID); err != nil {
		log.Printf("session %s: leave failed for %s: %v", code, userID, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// ScenarioRequest is the request body for publishing a scenario
type ScenarioRequest struct {
	TaskDescription string   `json:"taskDescription"`
	Checkpoints     []string `json:"checkpoints"`
}

// SetScenario handles PUT /v1/sessions/{code}/scenario
func (h *ArenaHandler) SetScenario(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	hostID := middleware.GetHostID(r.Context())

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TaskDescription == "" || len(req.Checkpoints) == 0 {
		writeError(w, http.StatusBadRequest, "taskDescription and checkpoints are required")
		return
	}

	sc := model.Scenario{TaskDescription: req.TaskDescription, Checkpoints: req.Checkpoints}
	if err := h.mgr.SetScenario(r.Context(), code, hostID, sc); err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

// Start handles POST /v1/sessions/{code}/start
func (h *ArenaHandler) Start(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	hostID := middleware.GetHostID(r.Context())

	if err := h.raceSvc.StartRace(r.Context(), code, hostID, h.raceDuration); err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.SessionActive)})
}

// ProgressRequest is the request body for a progress update
type ProgressRequest struct {
	Progress int                     `json:"progress"`
	Status   model.ParticipantStatus `json:"status"`
}

// UpdateProgress handles PUT /v1/sessions/{code}/progress
func (h *ArenaHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	userID := middleware.GetParticipantID(r.Context())

	if middleware.GetSessionCode(r.Context()) != code {
		writeError(w, http.StatusForbidden, "token not valid for this session")
		return
	}

	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be 0-100")
		return
	}

	if err := h.mgr.UpdateProgress(r.Context(), code, userID, req.Progress, req.Status); err != nil {
		writeArenaError(w, err)
		return
	}

	h.raceSvc.CheckAllFinished(r.Context(), code)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Leaderboard handles GET /v1/sessions/{code}/leaderboard
func (h *ArenaHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	limit := 20
	if s := r.URL.Query().Get("top"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.raceSvc.Leaderboard(r.Context(), code, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Rank handles GET /v1/sessions/{code}/rank/{userId}
func (h *ArenaHandler) Rank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	rank, err := h.raceSvc.Rank(r.Context(), vars["code"], vars["userId"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rank": rank})
}

func writeArenaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, arena.ErrNotHost):
		writeError(w, http.StatusForbidden, "only the host may do that")
	case errors.Is(err, arena.ErrNoScenario):
		writeError(w, http.StatusConflict, "wait for the scenario to be published")
	case errors.Is(err, arena.ErrSessionActive):
		writeError(w, http.StatusConflict, "the race has already started")
	case errors.Is(err, arena.ErrSessionOver):
		writeError(w, http.StatusConflict, "the race is over")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
