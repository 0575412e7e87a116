package ws

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const (
	bridgeSecretHeader = "X-Bridge-Secret"
	maxBridgeBody      = 1 << 20
)

// BridgeHandler accepts canonical updates from the durable service over HTTP
// and fans them out to the session's sockets.
type BridgeHandler struct {
	hub    *Hub
	secret string
}

func NewBridgeHandler(hub *Hub, secret string) *BridgeHandler {
	return &BridgeHandler{hub: hub, secret: secret}
}

// ServeHTTP handles POST /broadcast.
func (b *BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+bridgeSecretHeader)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("broadcast panicked", "panic", rec)
			writeBridgeError(w, http.StatusInternalServerError, "server error")
		}
	}()

	if b.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(bridgeSecretHeader)), []byte(b.secret)) != 1 {
		writeBridgeError(w, http.StatusUnauthorized, "invalid bridge secret")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBridgeBody))
	if err != nil {
		writeBridgeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	msg, err := Parse(body)
	switch {
	case errors.Is(err, ErrMissingSession):
		writeBridgeError(w, http.StatusBadRequest, "missing sessionId")
		return
	case err != nil:
		writeBridgeError(w, http.StatusBadRequest, err.Error())
		return
	}

	delivered, err := b.hub.Deliver(msg)
	if errors.Is(err, ErrUnknownType) {
		writeBridgeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Errorw("broadcast failed", "session", msg.Session(), "type", msg.Type(), "err", err)
		writeBridgeError(w, http.StatusInternalServerError, "server error")
		return
	}

	log.Debugw("broadcast delivered", "session", msg.Session(), "type", msg.Type(), "sockets", delivered)
	writeBridgeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"delivered": delivered,
	})
}

func writeBridgeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeBridgeError(w http.ResponseWriter, status int, message string) {
	writeBridgeJSON(w, status, map[string]string{"error": message})
}
