package httperrors

import (
	"net/http"
	"strconv"

	"github.com/txix-open/isp-kit/json"
)

type HttpError struct {
	statusCode    int
	userMessage   string
	retryAfterSec int
	details       []interface{}
	err           error
}

func New(statusCode int, userMessage string, internalError error) HttpError {
	return HttpError{
		statusCode:  statusCode,
		userMessage: userMessage,
		err:         internalError,
	}
}

func (e HttpError) Error() string {
	return e.err.Error()
}

func (e HttpError) WithRetryAfter(seconds int) HttpError {
	e.retryAfterSec = seconds
	return e
}

func (e HttpError) WithDetails(details ...interface{}) HttpError {
	e.details = details
	return e
}

func (e HttpError) WriteError(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if e.retryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.retryAfterSec))
	}
	w.WriteHeader(e.statusCode)
	data := map[string]interface{}{
		"errorCode":    http.StatusText(e.statusCode),
		"errorMessage": e.userMessage,
		"details":      e.details,
	}
	return json.NewEncoder(w).Encode(data)
}
