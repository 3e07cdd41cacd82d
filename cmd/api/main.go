package main

import (
	"log"

	"go-chemviz-dashboard-ui/internal/config"
	httpapi "go-chemviz-dashboard-ui/internal/http"
)

var version = "dev"

func main() {
	cfg := config.FromEnv()
	srv, err := httpapi.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	log.Printf("starting ChemViz dashboard UI version=%s on %s (backend=%s)", version, cfg.ListenAddr, cfg.BackendBaseURL)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
