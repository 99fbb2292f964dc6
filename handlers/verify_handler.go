package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"veriHabitAPI/middleware"
	"veriHabitAPI/services"
)

const maxUploadSize = 10 << 20 // 10 MB

type VerifyHandler struct {
	verificationService *services.VerificationService
}

func NewVerifyHandler(verificationService *services.VerificationService) *VerifyHandler {
	return &VerifyHandler{
		verificationService: verificationService,
	}
}

// VerifySubmission accepts a multipart proof image plus a habitId and runs
// the full verification gateway. The judge round-trip dominates latency, so
// the timeout is wider than the usual handler budget.
func (h *VerifyHandler) VerifySubmission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondWithError(w, http.StatusBadRequest, "Image too large or malformed upload")
		return
	}

	habitID, err := uuid.Parse(r.FormValue("habitId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid or missing habitId")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "No image uploaded")
		return
	}
	defer file.Close()

	tmpPath, err := saveUploadToTemp(file, header.Filename)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to buffer upload")
		return
	}
	// The service owns tmpPath from here and removes it on every exit path.

	result, err := h.verificationService.Verify(ctx, clerkID, habitID, tmpPath, header.Filename, middleware.GetTimezone(ctx))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	middleware.RecordVerificationOutcome(result.Success)
	respondWithJSON(w, http.StatusOK, result)
}

func saveUploadToTemp(file io.Reader, fileName string) (string, error) {
	tmp, err := os.CreateTemp("", "verihabit-upload-*"+filepath.Ext(fileName))
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
