// Package root serves the API's greeting at "/".
package root

import (
	"encoding/json"
	"net/http"
)

// Message is the fixed greeting returned by the root endpoint.
const Message = "Welcome to Digital Immortality API"

// Response is the root payload.
type Response struct {
	Message string `json:"message"`
}

var body = mustMarshal(Response{Message: Message})

// Handler writes the greeting. It is mounted as a plain handler, outside
// Huma, so the body stays exactly {"message":"..."} without a $schema link.
func Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
