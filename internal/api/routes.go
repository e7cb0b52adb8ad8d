package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(apiHeadersMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/items/{id}", func(r chi.Router) {
		r.Use(timeoutMiddleware(30 * time.Second))
		r.Get("/", s.handleGetItem)
		r.Put("/", s.handlePutItem)
		r.Delete("/", s.handleDeleteItem)
	})
	return r
}
