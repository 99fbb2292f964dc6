package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"veriHabitAPI/middleware"
	"veriHabitAPI/services"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
	}
}

func (h *SubmissionHandler) ListHabitSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	habitID, err := pathUUID(r, "habitId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid habit id")
		return
	}

	subs, err := h.submissionService.ListHabitSubmissions(ctx, clerkID, habitID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, subs)
}

func (h *SubmissionHandler) AppealSubmission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	submissionID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid submission id")
		return
	}

	resp, err := h.submissionService.Appeal(ctx, clerkID, submissionID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// ReviewAppeal resolves a pending appeal. Any authenticated user can call
// this; there is no reviewer role yet.
func (h *SubmissionHandler) ReviewAppeal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	submissionID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid submission id")
		return
	}

	var req struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.submissionService.ReviewAppeal(ctx, submissionID, req.Approve)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
