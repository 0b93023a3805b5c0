package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// HandleDetectStream runs detection on every binary frame received over the
// websocket and answers each with one JSON detect response.
func (h *Handler) HandleDetectStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.maxUpload)
	slog.Info("Detection stream opened", "remote", r.RemoteAddr)

	frames := 0
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				slog.Warn("Detection stream read failed", "err", err)
			}
			break
		}

		if kind != websocket.BinaryMessage {
			if err := conn.WriteJSON(map[string]string{"error": "send images as binary frames"}); err != nil {
				break
			}
			continue
		}

		frames++
		if err := conn.WriteJSON(h.detect(r.Context(), message)); err != nil {
			slog.Warn("Detection stream write failed", "err", err)
			break
		}
	}

	slog.Info("Detection stream closed", "remote", r.RemoteAddr, "frames", frames)
}
