package routes

import (
	"net/http"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
}

type SessionCounter interface {
	Count() int
}

func HealthHandler(serviceName string, sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Service: serviceName}
		if sessions != nil {
			resp.Sessions = sessions.Count()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
