package httpapi

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, app *App) {
	r.Get("/healthz", healthHandler)
	r.Get("/records", app.listRecordsHandler)
	r.Get("/records/{username}", app.getRecordHandler)
	r.Post("/records", app.insertRecordHandler)
	r.Delete("/records/{username}", app.deleteRecordHandler)
}
