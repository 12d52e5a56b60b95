package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/middleware"
	"hydra-waf/internal/store"
)

// DBHandler is the generic admin browser over the event store tables.
// It only accepts names from the store's closed registry.
type DBHandler struct {
	store *store.Store
}

func NewDBHandler(s *store.Store) *DBHandler {
	return &DBHandler{store: s}
}

func (h *DBHandler) Tables(w http.ResponseWriter, r *http.Request) {
	response.JSONSuccess(w, map[string]interface{}{"tables": store.TableNames()})
}

func (h *DBHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListTable(r.Context(), r.PathValue("table"))
	if errors.Is(err, store.ErrUnknownTable) {
		response.JSONError(w, http.StatusNotFound, "Unknown table")
		return
	}
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list records")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"rows": rows})
}

func (h *DBHandler) Create(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	identity, _ := middleware.IdentityFrom(r.Context())

	id, err := h.store.CreateRecord(r.Context(), r.PathValue("table"), data, identity)
	switch {
	case errors.Is(err, store.ErrUnknownTable):
		response.JSONError(w, http.StatusNotFound, "Unknown table")
	case errors.Is(err, store.ErrDuplicate):
		response.JSONError(w, http.StatusConflict, "Duplicate record")
	case err != nil:
		response.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		response.JSON(w, http.StatusCreated, map[string]interface{}{"id": id})
	}
}

func (h *DBHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	identity, _ := middleware.IdentityFrom(r.Context())

	switch err := h.store.UpdateRecord(r.Context(), r.PathValue("table"), id, data, identity); {
	case errors.Is(err, store.ErrUnknownTable):
		response.JSONError(w, http.StatusNotFound, "Unknown table")
	case errors.Is(err, store.ErrNotFound):
		response.JSONError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, store.ErrDuplicate):
		response.JSONError(w, http.StatusConflict, "Duplicate record")
	case err != nil:
		response.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		response.JSONSuccess(w, map[string]string{"status": "updated"})
	}
}

func (h *DBHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	identity, _ := middleware.IdentityFrom(r.Context())

	switch err := h.store.DeleteRecord(r.Context(), r.PathValue("table"), id, identity); {
	case errors.Is(err, store.ErrUnknownTable):
		response.JSONError(w, http.StatusNotFound, "Unknown table")
	case errors.Is(err, store.ErrNotFound):
		response.JSONError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, store.ErrSelfDelete):
		response.JSONError(w, http.StatusForbidden, "Cannot delete your own account")
	case err != nil:
		response.JSONError(w, http.StatusInternalServerError, "Could not delete record")
	default:
		response.JSONSuccess(w, map[string]string{"status": "deleted"})
	}
}
