package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSHandler serves the same live feed as the SSE stream over a
// WebSocket, for clients that keep a socket open anyway. The socket is
// outbound only; inbound frames are read and discarded to service
// close handshakes.
func (h *Handler) WSHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	if _, err := h.gameService.GetGameByID(r.Context(), gameID); err != nil {
		h.CreateErrorResponse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	log.Infof("New WebSocket connection established: %s (game %s)", socketId, gameID)

	sub := h.notifyHub.Subscribe(gameID)
	done := make(chan struct{})

	// drain reads so pings and the close handshake are processed
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
				} else {
					log.Infof("WebSocket connection closed normally for socket: %s", socketId)
				}
				return
			}
		}
	}()

	go func() {
		defer func() {
			log.Infof("Closing WebSocket connection: %s", socketId)
			h.notifyHub.Unsubscribe(sub)
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case msg := <-sub.C:
				frame, err := json.Marshal(wsFrame{Event: msg.Event, Data: msg.Data})
				if err != nil {
					log.Errorf("Failed to encode frame for socket %s: %v", socketId, err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					log.Errorf("Failed to write to socket %s: %v", socketId, err)
					return
				}
			}
		}
	}()
}
