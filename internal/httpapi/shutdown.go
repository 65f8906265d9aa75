package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// RandomToken returns n random bytes hex encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type ShutdownHandler struct {
	Token    string
	Shutdown func()
}

// Handle answers first and then triggers the graceful stop. It is mounted
// behind LocalOnly.
func (h ShutdownHandler) Handle(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Shutdown-Token")
	if h.Token == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		WriteError(w, r, http.StatusUnauthorized, "unauthorized", "bad shutdown token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "shutting down"})
	if h.Shutdown != nil {
		go h.Shutdown()
	}
}
