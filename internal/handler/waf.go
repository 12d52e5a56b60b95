package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"hydra-waf/internal/detector"
	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/journal"
	"hydra-waf/internal/models"
	"hydra-waf/internal/signature"
	"hydra-waf/internal/store"
)

// WAFHandler owns the detection control surface: rules, thresholds, event
// ingest, the live stream and health.
type WAFHandler struct {
	engine   *signature.Engine
	settings *detector.Settings
	ml       *detector.MLClient
	journal  *journal.Journal
	store    *store.Store
}

func NewWAFHandler(engine *signature.Engine, settings *detector.Settings, ml *detector.MLClient, jrnl *journal.Journal, s *store.Store) *WAFHandler {
	return &WAFHandler{engine: engine, settings: settings, ml: ml, journal: jrnl, store: s}
}

// --- RULES ---

func (h *WAFHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	response.JSONSuccess(w, map[string]interface{}{"rules": h.engine.Rules()})
}

// ToggleRule flips one rule by id; ?enabled=true|false.
func (h *WAFHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Query parameter 'enabled' must be true or false")
		return
	}

	rule, ok := h.engine.SetEnabled(id, enabled)
	if !ok {
		response.JSONError(w, http.StatusNotFound, "Unknown rule id")
		return
	}
	log.Printf("⛔ Rule %s enabled=%v", id, enabled)
	response.JSONSuccess(w, rule)
}

// --- SETTINGS ---

func (h *WAFHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSONSuccess(w, h.settings.Get())
}

// UpdateSettings applies a partial patch. A patch breaking the threshold
// ordering is rejected whole with a 400.
func (h *WAFHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch detector.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	values, err := h.settings.Update(patch)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	response.JSONSuccess(w, values)
}

// --- INGEST ---

// Ingest accepts one pipeline event and persists it to the event store.
func (h *WAFHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var ev models.IngestEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if ev.URL == "" {
		response.JSONError(w, http.StatusBadRequest, "Event is missing a URL")
		return
	}

	id, err := h.store.Ingest(r.Context(), ev)
	if err != nil {
		log.Printf("❌ Event ingest failed: %v", err)
		response.JSONError(w, http.StatusInternalServerError, "Could not persist event")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]interface{}{"wlog_id": id})
}

// --- LIVE STREAM ---

// Stream pushes every new journal record as a server-sent event.
func (h *WAFHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.JSONError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.journal.Subscribe()
	defer h.journal.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case rec := <-ch:
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// --- HEALTH ---

// Health reports the process and its dependencies in one payload.
func (h *WAFHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		dbStatus = "unreachable"
	}

	response.JSONSuccess(w, map[string]interface{}{
		"status":         "ok",
		"database":       dbStatus,
		"ml_cache_size":  h.ml.CacheLen(),
		"rules_loaded":   len(h.engine.Rules()),
		"ml_service_url": h.settings.Get().MLServiceURL,
	})
}
