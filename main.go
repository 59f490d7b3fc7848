package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/CReSIS/OLD-OPS-sub000/internal/config"
	"github.com/CReSIS/OLD-OPS-sub000/internal/crossover"
	"github.com/CReSIS/OLD-OPS-sub000/internal/db"
	"github.com/CReSIS/OLD-OPS-sub000/internal/middleware"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	db.Connect(cfg)

	crossover.Init()
	svc := crossover.NewService(
		crossover.PostgisBackend{DB: db.DB, QueryTimeout: cfg.QueryTimeout},
		cfg.MatchTolerance,
		cfg.CandidateConcurrency,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	r.Get("/", RootHandler)

	r.Mount("/crossovers", crossover.SetupRoutes(svc, middleware.APIKeyMiddleware(cfg.APIKeyHash)))

	log.Printf("Server listening on port :%s...", cfg.Port)
	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
