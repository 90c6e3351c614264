package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

// WriteJSON encodes v before writing headers so an encoding failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes {"error": ErrCode, "message": Err}.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := http.StatusText(p.Code)
	if p.Err != nil {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: msg})
}

// WriteQueueError picks the status from the queue error taxonomy.
func WriteQueueError(w http.ResponseWriter, err error) {
	code, errCode := statusFor(err)
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case apperrors.IsValidation(err):
		return http.StatusBadRequest, "validation"
	case apperrors.IsStorage(err):
		return http.StatusServiceUnavailable, "storage"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
