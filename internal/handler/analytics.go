package handler

import (
	"net/http"
	"strconv"

	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/journal"
	"hydra-waf/internal/middleware"
	"hydra-waf/internal/store"
)

// AnalyticsHandler serves the dashboard read endpoints.
type AnalyticsHandler struct {
	store   *store.Store
	journal *journal.Journal
}

func NewAnalyticsHandler(s *store.Store, jrnl *journal.Journal) *AnalyticsHandler {
	return &AnalyticsHandler{store: s, journal: jrnl}
}

func (h *AnalyticsHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.store.GetKPIs(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not compute KPIs")
		return
	}
	response.JSONSuccess(w, kpis)
}

func (h *AnalyticsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, total, err := h.store.ListWAFLogs(r.Context(), limit, offset)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list logs")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"logs": logs, "total": total})
}

func (h *AnalyticsHandler) Traffic(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Traffic(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not compute traffic")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"daily": counts})
}

func (h *AnalyticsHandler) OWASP(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.OWASPBreakdown(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not compute breakdown")
		return
	}
	response.JSONSuccess(w, counts)
}

func (h *AnalyticsHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	hm, err := h.store.Heatmap(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not compute heatmap")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"heatmap": hm})
}

func (h *AnalyticsHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context(),
		r.URL.Query().Get("status"), r.URL.Query().Get("severity"))
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list alerts")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"alerts": alerts})
}

// CheckAlert acknowledges one alert.
func (h *AnalyticsHandler) CheckAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}
	identity, _ := middleware.IdentityFrom(r.Context())

	switch err := h.store.CheckAlert(r.Context(), id, identity.UserID, identity.Username); err {
	case nil:
		response.JSONSuccess(w, map[string]string{"status": "checked"})
	case store.ErrNotFound:
		response.JSONError(w, http.StatusNotFound, "Alert not found")
	default:
		response.JSONError(w, http.StatusInternalServerError, "Could not update alert")
	}
}

// Stats summarizes the journal by verdict; this is the edge's own view,
// independent of the event store.
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	records, err := h.journal.LoadAll()
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not read journal")
		return
	}

	byVerdict := map[string]int{}
	byReason := map[string]int{}
	for _, rec := range records {
		byVerdict[rec.Verdict]++
		if rec.Reason != "" {
			byReason[rec.Reason]++
		}
	}
	response.JSONSuccess(w, map[string]interface{}{
		"total":      len(records),
		"by_verdict": byVerdict,
		"by_reason":  byReason,
	})
}

func (h *AnalyticsHandler) SysLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.store.ListSysLogs(r.Context(), limit, offset)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list activity")
		return
	}

	type entryView struct {
		LogID     int64  `json:"log_id"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
		Source    string `json:"source"`
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			LogID:     e.SlogID,
			Message:   e.Message,
			Timestamp: e.SlogTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Source:    e.Source(),
		})
	}
	response.JSONSuccess(w, map[string]interface{}{"logs": views, "total": total})
}
