package handlers

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const keepaliveInterval = 15 * time.Second

// StreamHandler serves the live update feed for one game over SSE.
// Frames are best effort; a client that falls behind loses frames and
// catches up through GET /games/{id}/events with its last seen cursor.
func (h *Handler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	if _, err := h.gameService.GetGameByID(r.Context(), gameID); err != nil {
		h.CreateErrorResponse(w, err)
		return
	}

	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.notifyHub.Subscribe(gameID)
	defer h.notifyHub.Unsubscribe(sub)

	writeSSE(w, "hello", []byte(fmt.Sprintf(`{"game_id":%q}`, gameID)))
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			if dropped := sub.Dropped(); dropped > 0 {
				log.Infof("stream for game %s closed, %d frame(s) dropped", gameID, dropped)
			}
			return
		case msg := <-sub.C:
			writeSSE(w, msg.Event, msg.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
