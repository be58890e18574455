package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

type fakeStore struct {
	records  map[string]models.EventRecord
	inserted []models.EventRecord
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]models.EventRecord{}}
}

func (f *fakeStore) Insert(ctx context.Context, rec models.EventRecord) error {
	f.inserted = append(f.inserted, rec)
	f.records[rec.Username] = rec
	return nil
}

func (f *fakeStore) Get(ctx context.Context, username string) (*models.EventRecord, error) {
	rec, ok := f.records[username]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) Delete(ctx context.Context, username string) error {
	delete(f.records, username)
	f.deleted = append(f.deleted, username)
	return nil
}

func (f *fakeStore) List(ctx context.Context, limit int32) ([]models.EventRecord, error) {
	var out []models.EventRecord
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func newTestServer(store *fakeStore, hook ReEnrollmentHook) *httptest.Server {
	r := chi.NewRouter()
	RegisterRoutes(r, &App{Store: store, ReEnrollment: hook})
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestInsertRecord_SeedsFirstStep(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/records", InsertRecordRequest{
		Username:    "aapple",
		UniversalID: "1000123",
		AccountType: "employee",
		FirstName:   "Alice",
		LastName:    "Apple",
		MgrEmail:    "mgr@example.edu",
		InsertDate:  "2026-01-05T08-00",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, store.inserted, 1)
	rec := store.inserted[0]
	assert.Equal(t, "emp-1", rec.NextStep)
	assert.Equal(t, "2026-01-05T08-00", rec.NextStepDate, "first step is due at the insert date")
	assert.Equal(t, "", rec.PreviousStep)
}

func TestInsertRecord_StudentGetsStudentChain(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/records", InsertRecordRequest{
		Username:    "ccherry",
		AccountType: "student",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "stu-1", store.inserted[0].NextStep)
	assert.NotEmpty(t, store.inserted[0].InsertDate, "insert date defaults to now")
}

func TestInsertRecord_Validation(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store, nil)
	defer srv.Close()

	cases := []struct {
		name string
		req  InsertRecordRequest
	}{
		{"missing username", InsertRecordRequest{AccountType: "employee"}},
		{"unknown account type", InsertRecordRequest{Username: "aapple", AccountType: "contractor"}},
		{"bad insert date", InsertRecordRequest{Username: "aapple", AccountType: "employee", InsertDate: "2026-01-05"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/records", tc.req)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, store.inserted)
}

func TestGetRecord(t *testing.T) {
	store := newFakeStore()
	store.records["aapple"] = models.EventRecord{Username: "aapple", NextStep: "emp-30"}
	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/records/aapple")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec models.EventRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "emp-30", rec.NextStep)
}

func TestGetRecord_NotFound(t *testing.T) {
	srv := newTestServer(newFakeStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/records/nobody")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func deleteRecord(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestDeleteRecord_FiresStudentHook(t *testing.T) {
	store := newFakeStore()
	store.records["ccherry"] = models.EventRecord{Username: "ccherry", AccountType: models.AccountTypeStudent}

	var hooked []string
	srv := newTestServer(store, func(ctx context.Context, rec models.EventRecord) {
		hooked = append(hooked, rec.Username)
	})
	defer srv.Close()

	resp := deleteRecord(t, srv.URL+"/records/ccherry")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"ccherry"}, store.deleted)
	assert.Equal(t, []string{"ccherry"}, hooked)
}

func TestDeleteRecord_NoHookForEmployees(t *testing.T) {
	store := newFakeStore()
	store.records["aapple"] = models.EventRecord{Username: "aapple", AccountType: models.AccountTypeEmployee}

	var hooked []string
	srv := newTestServer(store, func(ctx context.Context, rec models.EventRecord) {
		hooked = append(hooked, rec.Username)
	})
	defer srv.Close()

	resp := deleteRecord(t, srv.URL+"/records/aapple")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, hooked)
}

func TestDeleteRecord_AbsentIsIdempotent(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store, nil)
	defer srv.Close()

	resp := deleteRecord(t, srv.URL+"/records/nobody")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(newFakeStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
