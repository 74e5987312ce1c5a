package handlers

import (
	"net/http"
	"time"

	"github.com/rohits-web03/todo-api/internal/utils"
)

const Version = "1.0.0"

// Index godoc
// @Summary Service information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func Index(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Todo Backend API Server",
		"version": Version,
		"status":  "running",
	})
}

// Health godoc
// @Summary Liveness probe
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	utils.JSONResponse(w, http.StatusNotFound, utils.Payload{
		Success: false,
		Error:   "Not Found",
	})
}
