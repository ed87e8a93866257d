package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	datafeed "github.com/fazecat/optionsmith/Internal/database"
	"github.com/fazecat/optionsmith/cmd/api/internal"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")

	if err := datafeed.InitDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer datafeed.CloseDatabase()

	jwtMgr := internal.NewJWTManager()
	api := &internal.API{JWTManager: jwtMgr}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(internal.CorsMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Public route
		r.Post("/token", api.HandleGenerateToken)

		r.Group(func(r chi.Router) {
			r.Use(internal.JWTAuthMiddleware(jwtMgr))

			r.Get("/runs", api.HandleListRuns)
			r.Get("/runs/latest", api.HandleLatestRun)
			r.Get("/runs/{runID}/selections", api.HandleGetSelections)
			r.Get("/runs/{runID}/snapshots/{stage}", api.HandleGetSnapshot)
		})
	})

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Results API listening on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
