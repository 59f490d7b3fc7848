package crossover

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the crossover endpoints. Writes go through protect.
func SetupRoutes(svc Runner, protect func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/segments/{segmentID}", ListHandler(svc))

	r.Group(func(r chi.Router) {
		r.Use(protect)
		r.Post("/detect", DetectHandler(svc))
		r.Post("/segments", IngestHandler(svc))
	})

	return r
}
