package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes caps JSON request bodies. Image uploads go through multipart
// forms and have their own limit.
const maxBodyBytes = 1 << 20

// ParseJSON decodes the request body into dest. The body size is capped;
// unknown fields are tolerated so clients can evolve ahead of the server.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
