package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

type InsertRecordRequest struct {
	Username    string `json:"username"`
	UniversalID string `json:"universal_id"`
	AccountType string `json:"account_type"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	MgrFirst    string `json:"mgr_first"`
	MgrLast     string `json:"mgr_last"`
	MgrEmail    string `json:"mgr_email"`
	InsertDate  string `json:"insert_date"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := a.Store.List(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load records"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

func (a *App) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	rec, err := a.Store.Get(r.Context(), username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load record"})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record for " + username})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// insertRecordHandler seeds a new record at the first step of its account
// type's chain. Insert is an upsert; re-sending a username restarts it.
func (a *App) insertRecordHandler(w http.ResponseWriter, r *http.Request) {
	var req InsertRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}
	if models.StepPrefix(req.AccountType) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown account_type " + req.AccountType})
		return
	}

	insertDate := req.InsertDate
	if insertDate == "" {
		insertDate = models.FormatStepDate(time.Now())
	} else if _, err := models.ParseStepDate(insertDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad insert_date: " + err.Error()})
		return
	}

	rec := models.EventRecord{
		Username:     req.Username,
		UniversalID:  req.UniversalID,
		AccountType:  req.AccountType,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MgrFirst:     req.MgrFirst,
		MgrLast:      req.MgrLast,
		MgrEmail:     req.MgrEmail,
		InsertDate:   insertDate,
		NextStep:     models.FirstStep(req.AccountType),
		NextStepDate: insertDate,
	}

	log.Printf("api: creating entry for %s with entry date of %s", rec.Username, rec.InsertDate)

	if err := a.Store.Insert(r.Context(), rec); err != nil {
		log.Println("api: failed to insert record:", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"username":  rec.Username,
		"next_step": rec.NextStep,
	})
}

// deleteRecordHandler removes a user from the deprovisioning process, e.g.
// on rehire or re-enrollment. Deleting an absent record succeeds.
func (a *App) deleteRecordHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	rec, err := a.Store.Get(r.Context(), username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load record"})
		return
	}

	if err := a.Store.Delete(r.Context(), username); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete record"})
		return
	}

	if rec != nil && rec.AccountType == models.AccountTypeStudent && a.ReEnrollment != nil {
		a.ReEnrollment(r.Context(), *rec)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": username})
}
