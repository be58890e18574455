package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ofelix-plnu/acct-deprov/internal/config"
	"github.com/ofelix-plnu/acct-deprov/internal/httpapi"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
	"github.com/ofelix-plnu/acct-deprov/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st, err := store.NewEventStore(ctx, store.Options{
		Region:        cfg.Region,
		Table:         cfg.EventTable,
		Endpoint:      cfg.DynamoEndpoint,
		StepDateIndex: cfg.StepDateIndexName,
		FailedIndex:   cfg.HasFailedIndexName,
	})
	if err != nil {
		log.Fatal("api: init event store:", err)
	}

	app := &httpapi.App{
		Store: st,
		ReEnrollment: func(ctx context.Context, rec models.EventRecord) {
			// Owned by an external collaborator; the hook is the contract.
			log.Println("api: re-enrollment notification for", rec.Username)
		},
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	httpapi.RegisterRoutes(r, app)

	log.Println("api: listening on :8080, table", cfg.EventTable)
	log.Fatal(http.ListenAndServe(":8080", r))
}
