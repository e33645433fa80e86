package v1

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.Write([]byte(`{"error":"internal_error","message":"failed to encode response"}`))
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	errorType := "internal_error"
	switch statusCode {
	case http.StatusBadRequest:
		errorType = "bad_request"
	case http.StatusServiceUnavailable:
		errorType = "service_unavailable"
	}
	writeJSONResponse(w, statusCode, errorResponse{Error: errorType, Message: message})
}
