package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/middleware"
	"hydra-waf/internal/models"
	"hydra-waf/internal/signature"
	"hydra-waf/internal/store"
)

// EntityHandler owns the admin CRUD surfaces: restrictions, stored regex
// signatures, suspicious user profiles, models and the whitelist.
type EntityHandler struct {
	store  *store.Store
	engine *signature.Engine
}

func NewEntityHandler(s *store.Store, engine *signature.Engine) *EntityHandler {
	return &EntityHandler{store: s, engine: engine}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// --- RESTRICTIONS ---

var restrictionTypes = map[string]bool{"ip": true, "hash": true, "domain": true}

func (h *EntityHandler) ListRestrictions(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListRestrictions(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list restrictions")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"restrictions": items})
}

func (h *EntityHandler) AddRestriction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	in.Value = strings.TrimSpace(in.Value)
	if !restrictionTypes[in.Type] {
		response.JSONError(w, http.StatusBadRequest, "Type must be ip, hash or domain")
		return
	}
	if in.Value == "" {
		response.JSONError(w, http.StatusBadRequest, "Value is required")
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	created, err := h.store.AddRestriction(r.Context(), in.Type, in.Value, identity.UserID)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not add restriction")
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *EntityHandler) DeleteRestriction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	switch err := h.store.DeleteRestriction(r.Context(), id); {
	case err == nil:
		response.JSONSuccess(w, map[string]string{"status": "deleted"})
	case errors.Is(err, store.ErrNotFound):
		response.JSONError(w, http.StatusNotFound, "Restriction not found")
	default:
		response.JSONError(w, http.StatusInternalServerError, "Could not delete restriction")
	}
}

// --- STORED REGEX SIGNATURES ---

// reloadCustomRules pushes the persisted regex signatures into the engine
// under CUSTOM_<row id> ids. Called after every signature write.
func (h *EntityHandler) reloadCustomRules(ctx context.Context) error {
	stored, err := h.store.ListSignatures(ctx)
	if err != nil {
		return err
	}
	rules := make([]signature.RawRule, 0, len(stored))
	for _, sig := range stored {
		rules = append(rules, signature.RawRule{
			ID:    "CUSTOM_" + strconv.FormatInt(sig.SignatureID, 10),
			Regex: sig.Content,
		})
	}
	return h.engine.SetCustomRules(rules)
}

func (h *EntityHandler) ListSignatures(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListSignatures(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list signatures")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"signatures": items})
}

func (h *EntityHandler) AddSignature(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type    string `json:"signature_type"`
		Content string `json:"signature_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Type == "" || in.Content == "" {
		response.JSONError(w, http.StatusBadRequest, "signature_type and signature_content are required")
		return
	}
	if err := signature.ValidatePattern(in.Content); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Pattern does not compile: "+err.Error())
		return
	}

	created, err := h.store.AddSignature(r.Context(), in.Type, in.Content)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not store signature")
		return
	}
	if err := h.reloadCustomRules(r.Context()); err != nil {
		log.Printf("⚠️ Custom rule reload failed: %v", err)
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *EntityHandler) UpdateSignature(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var in struct {
		Type    string `json:"signature_type"`
		Content string `json:"signature_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Content != "" {
		if err := signature.ValidatePattern(in.Content); err != nil {
			response.JSONError(w, http.StatusBadRequest, "Pattern does not compile: "+err.Error())
			return
		}
	}

	updated, err := h.store.UpdateSignature(r.Context(), id, in.Type, in.Content)
	if errors.Is(err, store.ErrNotFound) {
		response.JSONError(w, http.StatusNotFound, "Signature not found")
		return
	}
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not update signature")
		return
	}
	if err := h.reloadCustomRules(r.Context()); err != nil {
		log.Printf("⚠️ Custom rule reload failed: %v", err)
	}
	response.JSONSuccess(w, updated)
}

func (h *EntityHandler) DeleteSignature(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	switch err := h.store.DeleteSignature(r.Context(), id); {
	case err == nil:
		if err := h.reloadCustomRules(r.Context()); err != nil {
			log.Printf("⚠️ Custom rule reload failed: %v", err)
		}
		response.JSONSuccess(w, map[string]string{"status": "deleted"})
	case errors.Is(err, store.ErrNotFound):
		response.JSONError(w, http.StatusNotFound, "Signature not found")
	default:
		response.JSONError(w, http.StatusInternalServerError, "Could not delete signature")
	}
}

// --- SUSPICIOUS USER PROFILES ---

func (h *EntityHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListProfiles(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list profiles")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"profiles": items})
}

func (h *EntityHandler) AddProfile(w http.ResponseWriter, r *http.Request) {
	var p models.SuspiciousUserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(p.SusUsername) == "" {
		response.JSONError(w, http.StatusBadRequest, "sus_username is required")
		return
	}
	created, err := h.store.AddProfile(r.Context(), p)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not create profile")
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *EntityHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var p models.SuspiciousUserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	updated, err := h.store.UpdateProfile(r.Context(), id, p)
	if errors.Is(err, store.ErrNotFound) {
		response.JSONError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not update profile")
		return
	}
	response.JSONSuccess(w, updated)
}

func (h *EntityHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	switch err := h.store.DeleteProfile(r.Context(), id); {
	case err == nil:
		response.JSONSuccess(w, map[string]string{"status": "deleted"})
	case errors.Is(err, store.ErrNotFound):
		response.JSONError(w, http.StatusNotFound, "Profile not found")
	default:
		response.JSONError(w, http.StatusInternalServerError, "Could not delete profile")
	}
}

// --- MODELS ---

func (h *EntityHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListModels(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list models")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"models": items})
}

// --- WHITELIST ---

func (h *EntityHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListWhitelists(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list whitelist")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"whitelist": items})
}

// Whitelist marks a WAF log as a false positive.
func (h *EntityHandler) Whitelist(w http.ResponseWriter, r *http.Request) {
	var in struct {
		WlogID *int64 `json:"wlog_id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Reason) == "" {
		response.JSONError(w, http.StatusBadRequest, "Reason is required")
		return
	}
	identity, _ := middleware.IdentityFrom(r.Context())
	id, err := h.store.AddWhitelist(r.Context(), in.WlogID, in.Reason, identity.UserID)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not whitelist request")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]interface{}{"wl_id": id})
}
