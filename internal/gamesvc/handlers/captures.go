package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

type createCaptureRequest struct {
	SourceDeviceID *string `json:"source_device_id"`
}

type captureResponse struct {
	Capture *models.Capture `json:"capture"`
	Jobs    []*models.Job   `json:"jobs"`
}

// CreateCaptureHandler accepts a capture and answers 202 before any
// analysis ran; the spawned jobs in the response are what to poll. A
// replayed Idempotency-Key returns the original capture with 200.
func (h *Handler) CreateCaptureHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}

	req := createCaptureRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
			return
		}
	}

	idemKey := r.Header.Get("Idempotency-Key")
	capture, jobs, existing, err := h.captureService.CreateCapture(r.Context(), gameID, req.SourceDeviceID, idemKey)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}

	code := http.StatusAccepted
	message := "capture accepted"
	if existing {
		code = http.StatusOK
		message = "capture replayed for idempotency key"
	}
	h.CreateResponse(w, Response{Message: message, Code: code, Data: captureResponse{Capture: capture, Jobs: jobs}})
}

func (h *Handler) ListCapturesHandler(w http.ResponseWriter, r *http.Request) {
	gameID, ok := h.urlUUID(w, r, "gameID")
	if !ok {
		return
	}
	captures, err := h.captureService.ListByGame(r.Context(), gameID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: captures})
}

func (h *Handler) GetCaptureHandler(w http.ResponseWriter, r *http.Request) {
	captureID, ok := h.urlUUID(w, r, "captureID")
	if !ok {
		return
	}
	capture, err := h.captureService.GetCaptureByID(r.Context(), captureID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: capture})
}

func (h *Handler) ListCaptureJobsHandler(w http.ResponseWriter, r *http.Request) {
	captureID, ok := h.urlUUID(w, r, "captureID")
	if !ok {
		return
	}
	jobs, err := h.captureService.ListJobs(r.Context(), captureID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: jobs})
}
