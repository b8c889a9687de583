package httpx

import (
	"encoding/json"
	"net/http"
)

const corsOriginHeader = "Access-Control-Allow-Origin"

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeResponse(w http.ResponseWriter, resp Response) {
	writeJSON(w, resp.StatusCode, resp.Body)
}
