// Package api implements the JSON API served by the status server.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Response is the envelope for all API responses.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func sendJSON(w http.ResponseWriter, logger *logrus.Logger, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func sendError(w http.ResponseWriter, logger *logrus.Logger, message string, status int) {
	sendJSON(w, logger, Response{Success: false, Message: message}, status)
}

func parseInt(s string, defaultValue int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
