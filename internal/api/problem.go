package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dreamware/zboard/internal/widget"
)

// Problem is the body of every error response
type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// badRequest marks client mistakes found before the board is touched
type badRequest struct {
	err error
}

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(err error) error {
	return badRequest{err: err}
}

// status maps an error onto its HTTP status and problem title
func status(err error) (int, string) {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, widget.ErrInvalidWidget):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, widget.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, widget.ErrConcurrentModification):
		return http.StatusConflict, "Concurrent Modification"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(p)
}
