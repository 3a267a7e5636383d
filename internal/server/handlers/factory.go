package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// CRUD is the generic handler set every resource is built on. It is
// parameterized by the resource type and its collection, plus an
// optional list scope (parent constraint for nested collections) and an
// optional create mutator (e.g. injecting the author from the session).
type CRUD[T any] struct {
	Resp   *Responder
	Repo   storage.Repository[T]
	Name   string
	Plural string

	// Scope adds filter clauses derived from the request, e.g. the
	// parent tour id on a nested review listing.
	Scope func(r *http.Request) []query.Clause

	// Prepare mutates a decoded payload before creation.
	Prepare func(r *http.Request, v *T) error
}

// List applies the query feature pipeline to the collection and returns
// the matched set with its count.
func (h *CRUD[T]) List(w http.ResponseWriter, r *http.Request) {
	d, err := query.Parse(r.URL.Query())
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	if h.Scope != nil {
		d.Filter = append(d.Filter, h.Scope(r)...)
	}

	items, err := h.Repo.List(r.Context(), d)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}

	h.Resp.List(w, h.Plural, len(items), projectSlice(items, d.Fields))
}

// Get fetches one resource by id, with relation expansion applied.
func (h *CRUD[T]) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := h.Repo.Get(r.Context(), id)
	if err != nil {
		h.Resp.Error(w, r, h.notFound(err, id))
		return
	}
	h.Resp.Data(w, http.StatusOK, h.Name, item)
}

// Create validates and inserts a new resource from the request payload.
func (h *CRUD[T]) Create(w http.ResponseWriter, r *http.Request) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		h.Resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}
	if h.Prepare != nil {
		if err := h.Prepare(r, &v); err != nil {
			h.Resp.Error(w, r, err)
			return
		}
	}

	if err := h.Repo.Create(r.Context(), &v); err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	h.Resp.Data(w, http.StatusCreated, h.Name, &v)
}

// Update applies a partial update by id, re-running validation on the
// changed fields.
func (h *CRUD[T]) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.Resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	item, err := h.Repo.Update(r.Context(), id, patch)
	if err != nil {
		h.Resp.Error(w, r, h.notFound(err, id))
		return
	}
	h.Resp.Data(w, http.StatusOK, h.Name, item)
}

// Delete removes a resource by id and signals success with no body.
func (h *CRUD[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Repo.Delete(r.Context(), id); err != nil {
		h.Resp.Error(w, r, h.notFound(err, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notFound turns the storage sentinel into an operational error naming
// the resource; other failures pass through unchanged.
func (h *CRUD[T]) notFound(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(fmt.Sprintf("No %s found with id %s.", h.Name, id))
	}
	return err
}

// projectSlice applies the field projection to each list item. An empty
// projection returns the items unchanged.
func projectSlice[T any](items []T, fields []string) any {
	if len(fields) == 0 {
		return items
	}
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}

	projected := make([]map[string]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return items
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return items
		}
		for k := range m {
			if !allowed[k] {
				delete(m, k)
			}
		}
		projected = append(projected, m)
	}
	return projected
}
