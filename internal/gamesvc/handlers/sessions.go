package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type createSessionRequest struct {
	GameID *uuid.UUID `json:"game_id"`
}

func (h *Handler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	req := createSessionRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
			return
		}
	}
	sess, err := h.sessionService.CreateSession(r.Context(), req.GameID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusCreated, Data: sess})
}

func (h *Handler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.urlUUID(w, r, "sessionID")
	if !ok {
		return
	}
	sess, err := h.sessionService.GetSessionByID(r.Context(), sessionID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: sess})
}

type addPlayRequest struct {
	Filename  string     `json:"filename"`
	CaptureID *uuid.UUID `json:"capture_id"`
}

func (h *Handler) AddPlayHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.urlUUID(w, r, "sessionID")
	if !ok {
		return
	}
	req := addPlayRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return
	}
	if req.Filename == "" {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "filename is required"})
		return
	}
	play, err := h.sessionService.AddPlay(r.Context(), sessionID, req.Filename, req.CaptureID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusCreated, Data: play})
}

func (h *Handler) ListPlaysHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.urlUUID(w, r, "sessionID")
	if !ok {
		return
	}
	plays, err := h.sessionService.ListPlays(r.Context(), sessionID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: plays})
}

// ArchiveSessionHandler closes the session and queues the file move;
// the 202 only acknowledges the request, archival runs in the worker.
func (h *Handler) ArchiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.urlUUID(w, r, "sessionID")
	if !ok {
		return
	}
	sess, err := h.sessionService.RequestArchive(r.Context(), sessionID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "archive requested", Code: http.StatusAccepted, Data: sess})
}
