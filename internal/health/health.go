// Package health exposes the dispatcher's liveness endpoint.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

type response struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Handler returns an http.Handler for GET /health.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{Status: "ok", Timestamp: time.Now().Unix()})
	})
}
