package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"

	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/middleware"
	"floraGuardAPI/services"
)

type GamificationHandler struct {
	gamificationService *services.GamificationService
	log                 *logger.Logger
}

func NewGamificationHandler(gamificationService *services.GamificationService, log *logger.Logger) *GamificationHandler {
	return &GamificationHandler{
		gamificationService: gamificationService,
		log:                 log.With("handler", "GamificationHandler"),
	}
}

// GET /api/v1/gamification/stats
func (h *GamificationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	resp, err := h.gamificationService.GetStats(ctx, clerkID)
	if err != nil {
		h.log.Error("failed to get stats", "user_id", clerkID, "error", err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GET /api/v1/gamification/achievements
func (h *GamificationHandler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	list, err := h.gamificationService.GetAchievements(ctx, clerkID)
	if err != nil {
		h.log.Error("failed to list achievements", "user_id", clerkID, "error", err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, list)
}

// GET /api/v1/gamification/achievements/catalog
func (h *GamificationHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	catalog, err := h.gamificationService.GetCatalog(ctx, clerkID)
	if err != nil {
		h.log.Error("failed to get catalog", "user_id", clerkID, "error", err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, catalog)
}

// GET /api/v1/gamification/leaderboard?limit=20
func (h *GamificationHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	board, err := h.gamificationService.GetLeaderboard(ctx, clerkID, limit)
	if err != nil {
		h.log.Error("failed to get leaderboard", "user_id", clerkID, "error", err)
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

type completeTaskRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

// POST /api/v1/gamification/tasks/{taskID}/complete
func (h *GamificationHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	taskID := mux.Vars(r)["taskID"]

	var req completeTaskRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	var completedAt time.Time
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	res, err := h.gamificationService.RecordTaskCompletion(ctx, clerkID, taskID, completedAt)
	h.respondWithActivity(w, clerkID, "task_completed", res, err)
}

type plantAddedRequest struct {
	PlantID string `json:"plant_id"`
}

// POST /api/v1/gamification/plants
func (h *GamificationHandler) PlantAdded(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req plantAddedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.gamificationService.RecordPlantAdded(ctx, clerkID, req.PlantID)
	h.respondWithActivity(w, clerkID, "plant_added", res, err)
}

// The plant's milestone count is tracked server side and not accepted here.
type milestoneRequest struct {
	MilestoneID   string  `json:"milestone_id"`
	PlantID       *string `json:"plant_id"`
	MilestoneType string  `json:"milestone_type"`
	Title         string  `json:"title"`
}

// POST /api/v1/gamification/milestones
func (h *GamificationHandler) MilestoneAdded(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req milestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.gamificationService.RecordMilestone(ctx, services.MilestoneEvent{
		UserID:        clerkID,
		MilestoneID:   req.MilestoneID,
		PlantID:       req.PlantID,
		MilestoneType: req.MilestoneType,
		Title:         req.Title,
	})
	h.respondWithActivity(w, clerkID, "milestone_added", res, err)
}

type diseaseTreatedRequest struct {
	DiagnosisID string  `json:"diagnosis_id"`
	PlantID     *string `json:"plant_id"`
}

// POST /api/v1/gamification/diseases/treated
func (h *GamificationHandler) DiseaseTreated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req diseaseTreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.gamificationService.RecordDiseaseTreated(ctx, clerkID, req.DiagnosisID, req.PlantID)
	h.respondWithActivity(w, clerkID, "disease_treated", res, err)
}

type perfectWeekRequest struct {
	WeekStart string `json:"week_start"`
}

// POST /api/v1/gamification/perfect-weeks
func (h *GamificationHandler) PerfectWeek(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req perfectWeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	weekStart, err := civil.ParseDate(req.WeekStart)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "week_start must be YYYY-MM-DD")
		return
	}

	res, err := h.gamificationService.RecordPerfectWeek(ctx, clerkID, weekStart)
	h.respondWithActivity(w, clerkID, "perfect_week", res, err)
}

type checkAchievementRequest struct {
	PlantID *string `json:"plant_id"`
}

// POST /api/v1/gamification/achievements/{achievementID}/check
func (h *GamificationHandler) CheckAchievement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req checkAchievementRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	res, err := h.gamificationService.CheckAchievement(ctx, clerkID, mux.Vars(r)["achievementID"], req.PlantID)
	h.respondWithActivity(w, clerkID, "achievement_check", res, err)
}

// respondWithActivity answers 202 when the result could not be persisted.
func (h *GamificationHandler) respondWithActivity(w http.ResponseWriter, clerkID, kind string, res *services.ActivityResult, err error) {
	if err != nil {
		h.log.Error("activity failed", "user_id", clerkID, "kind", kind, "error", err)
		respondWithServiceError(w, err)
		return
	}
	if !res.Saved {
		respondWithJSON(w, http.StatusAccepted, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
