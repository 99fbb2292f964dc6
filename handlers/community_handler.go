package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"veriHabitAPI/internal/types/feed"
	"veriHabitAPI/middleware"
	"veriHabitAPI/services"
)

type CommunityHandler struct {
	communityService *services.CommunityService
	userService      *services.UserService
}

func NewCommunityHandler(communityService *services.CommunityService, userService *services.UserService) *CommunityHandler {
	return &CommunityHandler{
		communityService: communityService,
		userService:      userService,
	}
}

// GetFeed serves the public feed. Auth is optional: an authenticated viewer
// gets isLiked flags and their block list applied.
func (h *CommunityHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, _ := middleware.GetClerkID(ctx)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.communityService.GetFeed(ctx, clerkID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *CommunityHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
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

	resp, err := h.communityService.ToggleLike(ctx, clerkID, submissionID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func (h *CommunityHandler) AddComment(w http.ResponseWriter, r *http.Request) {
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

	var req feed.AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Comment text is required (max 500 chars)")
		return
	}

	resp, err := h.communityService.AddComment(ctx, clerkID, submissionID, req.Text)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *CommunityHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	blockedID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if err := h.userService.BlockUser(ctx, clerkID, blockedID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"blocked": true})
}

func (h *CommunityHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	blockedID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if err := h.userService.UnblockUser(ctx, clerkID, blockedID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"blocked": false})
}
