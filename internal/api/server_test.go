package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_status/internal/ledger"
	"fleet_status/internal/storage"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []ledger.TransitionEvent
}

func (r *recordedEvents) TransitionCommitted(_ context.Context, ev ledger.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newTestServer(t *testing.T, cfg Config) (http.Handler, *recordedEvents) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	events := &recordedEvents{}
	l := ledger.New(store, ledger.Options{Notifier: events})
	return NewServer(l, cfg).Router(), events
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, Config{AuthEnabled: true, APIKeys: []string{"ops:k1"}})

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", resp["status"])
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newTestServer(t, Config{
		AuthEnabled: true,
		APIKeys:     []string{"ops:test-key-123", "another-key"},
	})

	tests := []struct {
		name       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{
			name:       "no key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			apiKey:     "wrong-key",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "valid key via X-API-Key",
			apiKey:     "test-key-123",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via Bearer",
			apiKey:     "another-key",
			keyHeader:  "Authorization",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.apiKey != "" {
				if tt.keyHeader == "Authorization" {
					headers = []string{"Authorization", "Bearer " + tt.apiKey}
				} else {
					headers = []string{tt.keyHeader, tt.apiKey}
				}
			}
			rec := do(t, h, http.MethodGet, "/aircraft", nil, headers...)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestTransitionRecordsActor(t *testing.T) {
	h, events := newTestServer(t, Config{AuthEnabled: true, APIKeys: []string{"ops:secret"}})
	auth := []string{"X-API-Key", "secret"}

	rec := do(t, h, http.MethodPost, "/aircraft", AircraftRequest{TailNumber: "vh-abc", Model: "A320"}, auth...)
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[AircraftResponse](t, rec)

	rec = do(t, h, http.MethodPost, "/aircraft/"+itoa(a.ID)+"/status",
		TransitionRequest{Status: "AOG", StartTime: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}, auth...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 1)
	assert.Equal(t, "ops", events.events[0].Actor)
}

func TestStatusLifecycle(t *testing.T) {
	h, _ := newTestServer(t, Config{})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := do(t, h, http.MethodPost, "/aircraft", AircraftRequest{TailNumber: "vh-abc", Model: "A320"})
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[AircraftResponse](t, rec)
	assert.Equal(t, "VH-ABC", a.TailNumber)
	assert.Equal(t, ledger.StatusUnknown, a.CurrentStatus)
	base := "/aircraft/" + itoa(a.ID)

	rec = do(t, h, http.MethodPost, base+"/status", TransitionRequest{Status: "aog", StartTime: t0, Description: "hydraulic leak"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	iv := decode[IntervalResponse](t, rec)
	assert.Equal(t, ledger.StatusAOG, iv.Status)
	assert.Nil(t, iv.EndTime)

	rec = do(t, h, http.MethodGet, "/aircraft/aog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aog := decode[[]StatusEntryResponse](t, rec)
	require.Len(t, aog, 1)
	assert.Equal(t, a.ID, aog[0].Aircraft.ID)
	assert.Equal(t, "hydraulic leak", aog[0].Interval.Description)

	// Backdated before the open interval start.
	rec = do(t, h, http.MethodPost, base+"/status", TransitionRequest{Status: "IN_SERVICE", StartTime: t0.Add(-time.Minute)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[map[string]string](t, rec)
	assert.Equal(t, string(ledger.CodeInvalidTimeOrdering), errResp["code"])

	rec = do(t, h, http.MethodPost, base+"/status", TransitionRequest{Status: "IN_SERVICE", StartTime: t0.Add(2 * time.Hour)})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/status/in_service", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]StatusEntryResponse](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/aircraft/aog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]StatusEntryResponse](t, rec))

	rec = do(t, h, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["IN_SERVICE"])

	rec = do(t, h, http.MethodGet, "/archive?status=AOG", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	archived := decode[[]IntervalResponse](t, rec)
	require.Len(t, archived, 1)
	require.NotNil(t, archived[0].EndTime)
	assert.True(t, t0.Add(2*time.Hour).Equal(*archived[0].EndTime))
	assert.Equal(t, "2h0m0s", archived[0].Duration)

	rec = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[DossierResponse](t, rec)
	require.Len(t, d.History, 2)
	require.NotNil(t, d.Current)
	assert.Equal(t, "IN_SERVICE", d.Current.Status)
	assert.Equal(t, "IN_SERVICE", d.Aircraft.CurrentStatus)
}

func TestLimitsAndForms(t *testing.T) {
	h, _ := newTestServer(t, Config{})

	rec := do(t, h, http.MethodPost, "/aircraft", AircraftRequest{TailNumber: "VH-LIM"})
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[AircraftResponse](t, rec)
	base := "/aircraft/" + itoa(a.ID)

	rec = do(t, h, http.MethodPost, base+"/limits", LimitRequest{Title: "MEL 32-41 brake wear"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	l := decode[LimitResponse](t, rec)

	rec = do(t, h, http.MethodPost, base+"/forms", FormRequest{FormType: "CRS", Reference: "WO-77"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f := decode[FormResponse](t, rec)

	rec = do(t, h, http.MethodGet, base, nil)
	d := decode[DossierResponse](t, rec)
	assert.Len(t, d.OpenLimits, 1)
	assert.Len(t, d.MaintenanceForms, 1)
	assert.Nil(t, d.Current)

	rec = do(t, h, http.MethodPost, "/limits/"+itoa(l.ID)+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[LimitResponse](t, rec).IsResolved)

	rec = do(t, h, http.MethodGet, base, nil)
	assert.Empty(t, decode[DossierResponse](t, rec).OpenLimits)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/limits/"+itoa(l.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/limits/"+itoa(l.ID), nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/forms/"+itoa(f.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/forms/"+itoa(f.ID), nil).Code)

	rec = do(t, h, http.MethodPatch, base, AircraftRequest{TailNumber: "VH-NEW", Model: "A321"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VH-NEW", decode[AircraftResponse](t, rec).TailNumber)

	rec = do(t, h, http.MethodGet, "/aircraft", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AircraftResponse](t, rec), 1)
}

func TestRequestValidation(t *testing.T) {
	h, _ := newTestServer(t, Config{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   ledger.Code
	}{
		{"unknown field", http.MethodPost, "/aircraft", `{"tail_number":"VH-X","colour":"red"}`, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"trailing data", http.MethodPost, "/aircraft", `{"tail_number":"VH-X"} {}`, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"missing tail", http.MethodPost, "/aircraft", `{"model":"A320"}`, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"bad id", http.MethodGet, "/aircraft/abc", nil, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"missing aircraft", http.MethodGet, "/aircraft/999", nil, http.StatusNotFound, ledger.CodeNotFound},
		{"transition missing aircraft", http.MethodPost, "/aircraft/999/status", `{"status":"AOG","start_time":"2026-05-01T10:00:00Z"}`, http.StatusNotFound, ledger.CodeNotFound},
		{"transition without start", http.MethodPost, "/aircraft/1/status", `{"status":"AOG"}`, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"transition to UNKNOWN", http.MethodPost, "/aircraft/1/status", `{"status":"UNKNOWN","start_time":"2026-05-01T10:00:00Z"}`, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"bad archive limit", http.MethodGet, "/archive?limit=ten", nil, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"negative archive limit", http.MethodGet, "/archive?limit=-1", nil, http.StatusBadRequest, ledger.CodeInvalidInput},
		{"limit for missing aircraft", http.MethodPost, "/aircraft/999/limits", `{"title":"x"}`, http.StatusNotFound, ledger.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[map[string]string](t, rec)
			assert.Equal(t, string(tt.wantCode), resp["code"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusConflict, httpStatus(ledger.CodeConflictingWrite))
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(ledger.CodeStorageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(ledger.CodeIntegrityViolation))
	assert.Equal(t, statusClientClosedRequest, httpStatus(ledger.CodeCanceled))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(ledger.CodeInternal))
}

func TestHandlerMountsUnderAPIPrefix(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), ":memory:", time.Second)
	require.NoError(t, err)
	defer store.Close()

	h := NewServer(ledger.New(store, ledger.Options{}), Config{}).Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodOptions, "/api/v1/aircraft", nil,
		"Origin", "https://ops.example.com", "Access-Control-Request-Method", "POST")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}
