package api

import (
	stderrors "errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/tutormux/pkg/errors"
)

// ErrorResponse is the caller-visible error envelope.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// writeError serializes an error into the envelope. Engine errors carry
// their own status and code; anything else is served as an opaque internal
// failure so internals never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	code := errors.CodeGenerationFailure

	var ee *errors.EngineError
	if stderrors.As(err, &ee) {
		status = ee.HTTPStatusCode()
		message = ee.Message
		code = ee.Code
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Status:    "error",
		Message:   message,
		ErrorCode: code,
	})
}
