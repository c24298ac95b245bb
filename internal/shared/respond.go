package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespondJSON writes v as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// RespondError writes a JSON error body with the given status code.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSON(w, status, errorBody{Error: msg})
}

// RespondDomainError maps well-known domain errors to HTTP status codes.
func RespondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		RespondError(w, http.StatusConflict, err.Error())
	default:
		RespondError(w, http.StatusBadRequest, err.Error())
	}
}
