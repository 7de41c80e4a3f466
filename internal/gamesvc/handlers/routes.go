package handlers

import (
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Post("/games", h.CreateGameHandler)
			r.Get("/games/{gameID}", h.GetGameHandler)
			r.Patch("/games/{gameID}", h.PatchGameHandler)
			r.Delete("/games/{gameID}", h.DeleteGameHandler)
			r.Get("/games/{gameID}/players", h.ListPlayersHandler)
			r.Get("/games/{gameID}/state", h.GetStateHandler)
			r.Get("/games/{gameID}/events", h.ListEventsHandler)

			r.Post("/games/{gameID}/captures", h.CreateCaptureHandler)
			r.Get("/games/{gameID}/captures", h.ListCapturesHandler)
			r.Get("/captures/{captureID}", h.GetCaptureHandler)
			r.Get("/captures/{captureID}/jobs", h.ListCaptureJobsHandler)

			r.Get("/jobs/{jobID}", h.GetJobHandler)
			r.Post("/jobs/{jobID}/cancel", h.CancelJobHandler)

			r.Post("/sessions", h.CreateSessionHandler)
			r.Get("/sessions/{sessionID}", h.GetSessionHandler)
			r.Post("/sessions/{sessionID}/plays", h.AddPlayHandler)
			r.Get("/sessions/{sessionID}/plays", h.ListPlaysHandler)
			r.Post("/sessions/{sessionID}/archive", h.ArchiveSessionHandler)
		})

		// Browser EventSource and WebSocket clients cannot set an
		// Authorization header, the token rides in ?jwt= instead.
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(h.tokenAuth, jwtauth.TokenFromQuery, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie))
			r.Use(jwtauth.Authenticator)

			r.Get("/games/{gameID}/stream", h.StreamHandler)
			r.Get("/games/{gameID}/ws", h.WSHandler)
		})
	})
}

func (h *Handler) InitAuth() {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": 8003022,
		"exp":        expirationTime,
	})

	// For debugging only, comment it out in production
	log.Infof("DEBUG: JWT for testing expires soon : %s", tokenString)
}
