package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

type createGameRequest struct {
	GameType string                 `json:"game_type"`
	Players  []playerRequest        `json:"players"`
	Metadata map[string]interface{} `json:"metadata"`
}

type playerRequest struct {
	Name  string  `json:"name"`
	Color *string `json:"color"`
	Seat  *int    `json:"seat"`
}

type gameResponse struct {
	Game    *models.Game     `json:"game"`
	Players []*models.Player `json:"players,omitempty"`
}

func (h *Handler) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	req := createGameRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return
	}
	if req.GameType == "" {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "game_type is required"})
		return
	}

	players := make([]*models.Player, 0, len(req.Players))
	for _, p := range req.Players {
		if p.Name == "" {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "player name is required"})
			return
		}
		players = append(players, &models.Player{Name: p.Name, Color: p.Color, Seat: p.Seat})
	}

	game, created, err := h.gameService.CreateGame(r.Context(), req.GameType, players, req.Metadata)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusCreated, Data: gameResponse{Game: game, Players: created}})
}

func (h *Handler) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	game, err := h.gameService.GetGameByID(r.Context(), gameID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: game})
}

type patchGameRequest struct {
	Status   *models.GameStatus     `json:"status"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (h *Handler) PatchGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	req := patchGameRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case models.GameActive, models.GamePaused, models.GameFinished, models.GameArchived:
		default:
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "unknown status " + string(*req.Status)})
			return
		}
	}

	game, err := h.gameService.PatchGame(r.Context(), gameID, req.Status, req.Metadata)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: game})
}

func (h *Handler) DeleteGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	if err := h.gameService.DeleteGame(r.Context(), gameID); err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "game deleted", Code: http.StatusOK})
}

func (h *Handler) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	players, err := h.gameService.ListPlayers(r.Context(), gameID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: players})
}

func (h *Handler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	snapshot, err := h.gameService.GetState(r.Context(), gameID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: snapshot})
}

// ListEventsHandler pages the event log with ?after=<seq>&limit=<n>,
// the catch-up path for clients whose stream dropped frames.
func (h *Handler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid after cursor"})
			return
		}
		after = parsed
	}
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.gameService.ListEvents(r.Context(), gameID, after, limit)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: events})
}
