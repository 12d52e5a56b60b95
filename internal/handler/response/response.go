package response

import (
	"encoding/json"
	"log"
	"net/http"
)

// JSON writes any payload with the given status.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("❌ Response encode failed: %v", err)
	}
}

// JSONSuccess writes a 200 payload.
func JSONSuccess(w http.ResponseWriter, payload interface{}) {
	JSON(w, http.StatusOK, payload)
}

// JSONError writes the error surface shared with the proxy: {"detail": ...}.
func JSONError(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}
