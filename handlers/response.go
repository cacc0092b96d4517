package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/services"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps service errors onto status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gamification.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrPersistence):
		respondWithError(w, http.StatusServiceUnavailable, "Gamification data is temporarily unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
