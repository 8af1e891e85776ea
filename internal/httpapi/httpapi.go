// Package httpapi is a thin net/http + encoding/json adapter over the
// core item/claim/category services. It is an example consumer, not the
// core's public surface -- HTTP routing is explicitly out of scope for
// the core itself, matching the teacher's cmd/bd composition root (which
// also keeps its CLI surface out of the internal packages it wires).
// Grounded on cmd/dialog-gateway's http.HandleFunc + encoding/json style.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giveaway/core/internal/apperr"
	"github.com/giveaway/core/internal/categories"
	"github.com/giveaway/core/internal/claims"
	"github.com/giveaway/core/internal/items"
	"github.com/giveaway/core/internal/model"
)

// Server wires the core services onto a *http.ServeMux.
type Server struct {
	Items      *items.Service
	Claims     *claims.Service
	Categories *categories.Service
}

// Handler builds the routed mux. Every route expects an X-User-Id header
// identifying the caller; this stands in for whatever auth layer a real
// deployment would front the core with.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /items", s.createItem)
	mux.HandleFunc("GET /items/{id}", s.getItem)
	mux.HandleFunc("POST /items/{id}/status", s.changeItemStatus)
	mux.HandleFunc("POST /items/{id}/claims", s.enqueueClaim)
	mux.HandleFunc("POST /claims/{id}/select", s.selectClaim)
	mux.HandleFunc("POST /claims/{id}/cancel", s.cancelClaim)
	return mux
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidStateTransition),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrConflictWithActiveClaims),
		errors.Is(err, apperr.ErrDuplicateClaim),
		errors.Is(err, apperr.ErrSelfClaimForbidden):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in items.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	item, err := s.Items.Create(r.Context(), actorID(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	view, err := s.Items.GetWithQueue(r.Context(), actorID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) changeItemStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	item, err := s.Items.ChangeStatus(r.Context(), actorID(r), r.PathValue("id"), model.ItemStatus(body.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) enqueueClaim(w http.ResponseWriter, r *http.Request) {
	var prefs struct {
		ContactMethod string `json:"contact_method"`
		ClaimerNote   string `json:"claimer_note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req := claims.EnqueueRequest{
		UserID: actorID(r),
		ItemID: r.PathValue("id"),
	}
	req.Prefs.ContactMethod = model.ContactMethod(prefs.ContactMethod)
	req.Prefs.ClaimerNote = prefs.ClaimerNote

	claim, err := s.Claims.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

func (s *Server) selectClaim(w http.ResponseWriter, r *http.Request) {
	if err := s.Claims.Select(r.Context(), actorID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.Claims.Cancel(r.Context(), actorID(r), r.PathValue("id"), body.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
