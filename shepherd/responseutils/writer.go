package responseutils

import (
	"encoding/json"
	"net/http"

	"github.com/ShepherdCMS/shepherd-app/log"
)

// Internal codes: These will be modified over time
const (
	DbErr       = "Database Error"
	FormatErr   = "Formatting Error"
	SizeErr     = "Size Limit Error"
	InternalErr = "Internal Error"
	RequestErr  = "Request Error"
	NotFoundErr = "Not Found Error"
	ConflictErr = "Conflict Error"
	QueueErr    = "Queue Error"
)

// ErrorResponse is the body of every non-2xx response the API writes.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteError(w http.ResponseWriter, statusCode int, errType, description string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errType, Description: description})
}

func WriteJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.API.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.API.Error(err)
	}
}
