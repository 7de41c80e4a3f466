package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"

	"github.com/woprlabs/wopr-services/internal/gamesvc/service"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
	"github.com/woprlabs/wopr-services/internal/hub"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth

	gameService    *service.GameService
	captureService *service.CaptureService
	jobService     *service.JobService
	sessionService *service.SessionService
	notifyHub      *hub.Hub
}

func NewHandler(games *service.GameService, captures *service.CaptureService, jobs *service.JobService, sessions *service.SessionService, notifyHub *hub.Hub) *Handler {
	return &Handler{
		gameService:    games,
		captureService: captures,
		jobService:     jobs,
		sessionService: sessions,
		notifyHub:      notifyHub,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (rs *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

// CreateErrorResponse maps store sentinels onto HTTP codes so handlers
// do not repeat the same switch.
func (rs *Handler) CreateErrorResponse(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
	}
	rs.CreateResponse(w, Response{Code: code, Error: err.Error()})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "game service is running at port " + os.Getenv("SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}

// urlUUID reads a uuid route parameter; the bool is false after an
// error response has already been written.
func (h *Handler) urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
