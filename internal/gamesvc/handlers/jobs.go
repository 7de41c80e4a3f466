package handlers

import (
	"net/http"
)

func (h *Handler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.urlUUID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := h.jobService.GetJobByID(r.Context(), jobID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: http.StatusOK, Data: job})
}

// CancelJobHandler flags a job for cancellation. The flag is advisory:
// a job that already started keeps running, and a terminal job is
// returned as-is so retries stay harmless.
func (h *Handler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.urlUUID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := h.jobService.RequestCancel(r.Context(), jobID)
	if err != nil {
		h.CreateErrorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "cancel requested", Code: http.StatusOK, Data: job})
}
