package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"hydra-waf/internal/analyzer"
	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/limiter"
	"hydra-waf/internal/store"
)

// AnalysisHandler turns intercepted requests into patching reports and
// tracks the (externally driven) model training lifecycle.
type AnalysisHandler struct {
	analyzer *analyzer.Service
	store    *store.Store
	limiter  *limiter.RateLimiter

	trainMu  sync.RWMutex
	training trainingState
}

type trainingState struct {
	InProgress  bool     `json:"in_progress"`
	Progress    int      `json:"progress"`
	Logs        []string `json:"logs"`
	LastTrained string   `json:"last_trained"`
}

func NewAnalysisHandler(svc *analyzer.Service, s *store.Store) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: svc,
		store:    s,
		limiter:  limiter.New(10, 60*time.Second),
	}
}

// Recommend analyzes one WAF log (by id) or a raw request string and
// persists the resulting patching report. Analysis failures still answer
// 200 with a fallback report.
func (h *AnalysisHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	if ok, wait := h.limiter.Allow(); !ok {
		retry := int(wait.Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		response.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"detail":      fmt.Sprintf("Analysis rate limit reached, retry in %ds", retry),
			"retry_after": retry,
		})
		return
	}

	var in struct {
		WlogID            *int64 `json:"wlog_id"`
		RawRequest        string `json:"raw_request"`
		AttackDescription string `json:"attack_description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	intercepted := in.RawRequest
	if intercepted == "" {
		intercepted = in.AttackDescription
	}
	if in.WlogID != nil {
		wlog, err := h.store.GetWAFLog(r.Context(), *in.WlogID)
		if errors.Is(err, store.ErrNotFound) {
			response.JSONError(w, http.StatusNotFound, "WAF log not found")
			return
		}
		if err != nil {
			response.JSONError(w, http.StatusInternalServerError, "Could not load WAF log")
			return
		}
		intercepted = wlog.InterceptedReq
	}
	if intercepted == "" {
		response.JSONError(w, http.StatusBadRequest, "Provide wlog_id, raw_request or attack_description")
		return
	}

	report, cached := h.analyzer.Analyze(r.Context(), intercepted)

	if !cached {
		details, err := json.Marshal(report)
		if err == nil {
			if _, err := h.store.AddReport(r.Context(), string(details), in.WlogID); err != nil {
				log.Printf("⚠️ Could not persist patching report: %v", err)
			}
		}
	}

	response.JSONSuccess(w, map[string]interface{}{
		"report":  report,
		"_cached": cached,
	})
}

// --- TRAINING LIFECYCLE ---

// StartTraining flags a training run. The actual training happens in the
// external model service; this endpoint just owns the shared state.
func (h *AnalysisHandler) StartTraining(w http.ResponseWriter, r *http.Request) {
	h.trainMu.Lock()
	defer h.trainMu.Unlock()

	if h.training.InProgress {
		response.JSONError(w, http.StatusConflict, "Training already in progress")
		return
	}
	h.training.InProgress = true
	h.training.Progress = 0
	h.training.Logs = []string{"Training started at " + time.Now().UTC().Format(time.RFC3339)}
	log.Printf("♻️ Model training started")
	response.JSONSuccess(w, h.training)
}

// TrainingProgress appends a progress update from the model service.
func (h *AnalysisHandler) TrainingProgress(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Progress int    `json:"progress"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	h.trainMu.Lock()
	defer h.trainMu.Unlock()
	if !h.training.InProgress {
		response.JSONError(w, http.StatusConflict, "No training in progress")
		return
	}
	if in.Progress > h.training.Progress {
		h.training.Progress = in.Progress
	}
	if in.Message != "" {
		h.training.Logs = append(h.training.Logs, in.Message)
	}
	response.JSONSuccess(w, h.training)
}

// CompleteTraining closes the run.
func (h *AnalysisHandler) CompleteTraining(w http.ResponseWriter, r *http.Request) {
	h.trainMu.Lock()
	defer h.trainMu.Unlock()

	if !h.training.InProgress {
		response.JSONError(w, http.StatusConflict, "No training in progress")
		return
	}
	h.training.InProgress = false
	h.training.Progress = 100
	h.training.LastTrained = time.Now().UTC().Format(time.RFC3339)
	h.training.Logs = append(h.training.Logs, "Training completed")
	log.Printf("♻️ Model training completed")
	response.JSONSuccess(w, h.training)
}

// TrainingStatus reports the current state.
func (h *AnalysisHandler) TrainingStatus(w http.ResponseWriter, r *http.Request) {
	h.trainMu.RLock()
	defer h.trainMu.RUnlock()
	response.JSONSuccess(w, h.training)
}
