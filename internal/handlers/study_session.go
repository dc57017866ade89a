package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studytrack/internal/middleware"
	"studytrack/internal/models"
)

type StudySessionService interface {
	Active(ctx context.Context, userID uuid.UUID) (*models.StudySession, error)
	Start(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error)
	Pause(ctx context.Context, userID uuid.UUID) error
	Resume(ctx context.Context, userID uuid.UUID) error
	Stop(ctx context.Context, userID uuid.UUID, req models.StopSessionRequest) (*models.ActivityRecord, error)
	SetMilestoneProgress(ctx context.Context, userID, milestoneID uuid.UUID, progress float64) (*models.Milestone, error)
}

type StudySessionHandler struct {
	service StudySessionService
}

func NewStudySessionHandler(service StudySessionService) *StudySessionHandler {
	return &StudySessionHandler{service: service}
}

func (h *StudySessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	session, err := h.service.Active(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

func (h *StudySessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StartSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Start(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session": session,
	})
}

func (h *StudySessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.service.Pause(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Study session paused"})
}

func (h *StudySessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.service.Resume(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Study session resumed"})
}

func (h *StudySessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StopSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	record, err := h.service.Stop(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activity": record,
	})
}

func (h *StudySessionHandler) SetMilestoneProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	milestoneID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid milestone ID", r))
		return
	}

	var req models.MilestoneProgressRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	milestone, err := h.service.SetMilestoneProgress(r.Context(), userID, milestoneID, req.Progress)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"milestone": milestone,
	})
}
