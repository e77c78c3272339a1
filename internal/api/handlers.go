package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fleet_status/internal/ledger"
)

// statusClientClosedRequest is reported when the caller went away.
const statusClientClosedRequest = 499

const maxBodyBytes = 1 << 20

// AircraftResponse is the JSON form of an aircraft.
type AircraftResponse struct {
	ID            int64     `json:"id" yaml:"id"`
	TailNumber    string    `json:"tail_number" yaml:"tail_number"`
	Model         string    `json:"model" yaml:"model"`
	CurrentStatus string    `json:"current_status" yaml:"current_status"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// IntervalResponse is the JSON form of a status interval.
type IntervalResponse struct {
	ID          int64      `json:"id" yaml:"id"`
	AircraftID  int64      `json:"aircraft_id" yaml:"aircraft_id"`
	Status      string     `json:"status" yaml:"status"`
	StartTime   time.Time  `json:"start_time" yaml:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Duration    string     `json:"duration" yaml:"duration"`
}

// StatusEntryResponse is one row of a status listing.
type StatusEntryResponse struct {
	Aircraft     AircraftResponse `json:"aircraft" yaml:"aircraft"`
	Interval     IntervalResponse `json:"interval" yaml:"interval"`
	SinceSeconds int64            `json:"since_seconds" yaml:"since_seconds"`
}

// LimitResponse is the JSON form of a critical limit.
type LimitResponse struct {
	ID          int64      `json:"id" yaml:"id"`
	AircraftID  int64      `json:"aircraft_id" yaml:"aircraft_id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	IsResolved  bool       `json:"is_resolved" yaml:"is_resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
}

// FormResponse is the JSON form of a maintenance form.
type FormResponse struct {
	ID         int64     `json:"id" yaml:"id"`
	AircraftID int64     `json:"aircraft_id" yaml:"aircraft_id"`
	FormType   string    `json:"form_type" yaml:"form_type"`
	Reference  string    `json:"reference,omitempty" yaml:"reference,omitempty"`
	Status     string    `json:"status,omitempty" yaml:"status,omitempty"`
	Notes      string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// DossierResponse is the JSON form of an aircraft dossier.
type DossierResponse struct {
	Aircraft         AircraftResponse   `json:"aircraft" yaml:"aircraft"`
	Current          *IntervalResponse  `json:"current,omitempty" yaml:"current,omitempty"`
	History          []IntervalResponse `json:"history" yaml:"history"`
	OpenLimits       []LimitResponse    `json:"open_limits" yaml:"open_limits"`
	MaintenanceForms []FormResponse     `json:"maintenance_forms" yaml:"maintenance_forms"`
}

// StatsResponse summarises the fleet.
type StatsResponse struct {
	Total    int            `json:"total" yaml:"total"`
	ByStatus map[string]int `json:"by_status" yaml:"by_status"`
}

// NewAircraftResponse converts an aircraft to its wire form.
func NewAircraftResponse(a ledger.Aircraft) AircraftResponse {
	return AircraftResponse{
		ID:            a.ID,
		TailNumber:    a.TailNumber,
		Model:         a.Model,
		CurrentStatus: a.CurrentStatus,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// NewIntervalResponse converts an interval; open intervals are measured up
// to now.
func NewIntervalResponse(iv ledger.StatusInterval, now time.Time) IntervalResponse {
	return IntervalResponse{
		ID:          iv.ID,
		AircraftID:  iv.AircraftID,
		Status:      iv.Status,
		StartTime:   iv.StartTime,
		EndTime:     iv.EndTime,
		Description: iv.Description,
		Duration:    iv.Duration(now).Round(time.Second).String(),
	}
}

// NewStatusEntryResponse converts one row of a status listing.
func NewStatusEntryResponse(e ledger.StatusEntry, now time.Time) StatusEntryResponse {
	return StatusEntryResponse{
		Aircraft:     NewAircraftResponse(e.Aircraft),
		Interval:     NewIntervalResponse(e.Interval, now),
		SinceSeconds: int64(e.Since / time.Second),
	}
}

// NewLimitResponse converts a critical limit to its wire form.
func NewLimitResponse(l ledger.CriticalLimit) LimitResponse {
	return LimitResponse{
		ID:          l.ID,
		AircraftID:  l.AircraftID,
		Title:       l.Title,
		Description: l.Description,
		DueAt:       l.DueAt,
		IsResolved:  l.IsResolved,
		ResolvedAt:  l.ResolvedAt,
		CreatedAt:   l.CreatedAt,
	}
}

// NewFormResponse converts a maintenance form to its wire form.
func NewFormResponse(f ledger.MaintenanceForm) FormResponse {
	return FormResponse{
		ID:         f.ID,
		AircraftID: f.AircraftID,
		FormType:   f.FormType,
		Reference:  f.Reference,
		Status:     f.Status,
		Notes:      f.Notes,
		CreatedAt:  f.CreatedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListAircraft(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Records.ListAircraft(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]AircraftResponse, 0, len(list))
	for _, a := range list {
		out = append(out, NewAircraftResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// AircraftRequest is the body of create and update aircraft requests.
type AircraftRequest struct {
	TailNumber string `json:"tail_number"`
	Model      string `json:"model"`
}

func (s *Server) handleCreateAircraft(w http.ResponseWriter, r *http.Request) {
	var req AircraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.ledger.Records.CreateAircraft(r.Context(), req.TailNumber, req.Model)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewAircraftResponse(a))
}

func (s *Server) handleUpdateAircraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AircraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.ledger.Records.UpdateAircraftAttributes(r.Context(), id, req.TailNumber, req.Model)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAircraftResponse(a))
}

func (s *Server) handleListAOG(w http.ResponseWriter, r *http.Request) {
	s.listByStatus(w, r, ledger.StatusAOG)
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	s.listByStatus(w, r, chi.URLParam(r, "status"))
}

func (s *Server) listByStatus(w http.ResponseWriter, r *http.Request, status string) {
	entries, err := s.ledger.Query.ListByStatus(r.Context(), status)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	now := time.Now()
	out := make([]StatusEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewStatusEntryResponse(e, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.ledger.Query.FleetSummary(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	resp := StatsResponse{ByStatus: make(map[string]int)}
	for _, c := range counts {
		resp.Total += c.Count
		resp.ByStatus[c.Status] = c.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ArchiveFilter{Status: r.URL.Query().Get("status")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	list, err := s.ledger.Query.Archive(r.Context(), filter)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	now := time.Now()
	out := make([]IntervalResponse, 0, len(list))
	for _, iv := range list {
		out = append(out, NewIntervalResponse(iv, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDossier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.ledger.Dossiers.Dossier(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	now := time.Now()
	resp := DossierResponse{
		Aircraft:         NewAircraftResponse(d.Aircraft),
		History:          make([]IntervalResponse, 0, len(d.History)),
		OpenLimits:       make([]LimitResponse, 0, len(d.OpenLimits)),
		MaintenanceForms: make([]FormResponse, 0, len(d.MaintenanceForms)),
	}
	if cur := d.Current(); cur != nil {
		c := NewIntervalResponse(*cur, now)
		resp.Current = &c
	}
	for _, iv := range d.History {
		resp.History = append(resp.History, NewIntervalResponse(iv, now))
	}
	for _, l := range d.OpenLimits {
		resp.OpenLimits = append(resp.OpenLimits, NewLimitResponse(l))
	}
	for _, f := range d.MaintenanceForms {
		resp.MaintenanceForms = append(resp.MaintenanceForms, NewFormResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// TransitionRequest is the body of a status change.
type TransitionRequest struct {
	Status      string    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	Description string    `json:"description"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "status is required")
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "start_time is required")
		return
	}

	iv, err := s.ledger.Engine.Transition(r.Context(), ledger.TransitionRequest{
		AircraftID:  id,
		Status:      req.Status,
		StartTime:   req.StartTime,
		Description: req.Description,
		Actor:       ActorFrom(r.Context()),
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewIntervalResponse(iv, time.Now()))
}

// LimitRequest is the body of a new critical limit.
type LimitRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
}

func (s *Server) handleAddLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req LimitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, err := s.ledger.Records.AddCriticalLimit(r.Context(), ledger.CriticalLimit{
		AircraftID:  id,
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewLimitResponse(l))
}

func (s *Server) handleResolveLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	l, err := s.ledger.Records.ResolveCriticalLimit(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewLimitResponse(l))
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Records.DeleteCriticalLimit(r.Context(), id); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FormRequest is the body of a new maintenance form.
type FormRequest struct {
	FormType  string `json:"form_type"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

func (s *Server) handleAddForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req FormRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := s.ledger.Records.AddMaintenanceForm(r.Context(), ledger.MaintenanceForm{
		AircraftID: id,
		FormType:   req.FormType,
		Reference:  req.Reference,
		Status:     req.Status,
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewFormResponse(f))
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Records.DeleteMaintenanceForm(r.Context(), id); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions.

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "Invalid JSON: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, string(ledger.CodeInvalidInput), "Invalid JSON: trailing data")
		return false
	}
	return true
}

// httpStatus maps a ledger error code to an HTTP status.
func httpStatus(code ledger.Code) int {
	switch code {
	case ledger.CodeNotFound:
		return http.StatusNotFound
	case ledger.CodeInvalidInput:
		return http.StatusBadRequest
	case ledger.CodeInvalidTimeOrdering:
		return http.StatusUnprocessableEntity
	case ledger.CodeConflictingWrite:
		return http.StatusConflict
	case ledger.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case ledger.CodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := ledger.CodeOf(err)
	status := httpStatus(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", string(code)),
			zap.Error(err))
		if code == ledger.CodeInternal {
			msg = "internal error"
		}
	}
	writeError(w, status, string(code), msg)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
