package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/intel"
	"hydra-waf/internal/models"
	"hydra-waf/internal/store"
)

// IntelHandler serves threat intelligence lookups and feeds.
type IntelHandler struct {
	intel *intel.Service
	store *store.Store
}

func NewIntelHandler(svc *intel.Service, s *store.Store) *IntelHandler {
	return &IntelHandler{intel: svc, store: s}
}

// Lookup resolves one indicator against the local block list first, then
// the external providers. A local hit short-circuits the providers.
func (h *IntelHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	indicatorType := r.URL.Query().Get("type")
	value := strings.TrimSpace(r.URL.Query().Get("value"))
	if !intel.ValidIndicatorType(indicatorType) {
		response.JSONError(w, http.StatusBadRequest, "Type must be ip, domain or hash")
		return
	}
	if value == "" {
		response.JSONError(w, http.StatusBadRequest, "Value is required")
		return
	}

	if restriction, err := h.store.FindRestriction(r.Context(), indicatorType, value); err == nil {
		response.JSONSuccess(w, map[string]interface{}{
			"value":   value,
			"type":    indicatorType,
			"blocked": true,
			"results": []models.TIResult{{
				Provider: "local",
				Type:     indicatorType,
				Value:    value,
				Risk:     "high",
				Summary:  "Locally blacklisted",
				Raw:      restriction,
			}},
		})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		response.JSONError(w, http.StatusInternalServerError, "Block list lookup failed")
		return
	}

	results, err := h.intel.Lookup(r.Context(), indicatorType, value)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	response.JSONSuccess(w, map[string]interface{}{
		"value":   value,
		"type":    indicatorType,
		"blocked": false,
		"results": results,
	})
}

// writeLookupError maps provider failures onto the API status taxonomy:
// rate-limit denials answer 429 with retry_after, provider transport and
// status failures answer 502, everything else is a caller mistake.
func writeLookupError(w http.ResponseWriter, err error) {
	var rl *intel.RateLimitError
	if errors.As(err, &rl) {
		seconds := int(rl.RetryAfter.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		response.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"detail":      "Provider rate limit reached",
			"retry_after": seconds,
		})
		return
	}
	var ue *intel.UpstreamError
	if errors.As(err, &ue) {
		response.JSON(w, http.StatusBadGateway, map[string]string{
			"detail": "Threat intel provider unreachable",
			"error":  ue.Error(),
		})
		return
	}
	response.JSONError(w, http.StatusBadRequest, err.Error())
}

// Provider resolves one indicator against a single named provider.
func (h *IntelHandler) Provider(w http.ResponseWriter, r *http.Request) {
	indicatorType := r.URL.Query().Get("type")
	value := strings.TrimSpace(r.URL.Query().Get("value"))
	if !intel.ValidIndicatorType(indicatorType) {
		response.JSONError(w, http.StatusBadRequest, "Type must be ip, domain or hash")
		return
	}
	if value == "" {
		response.JSONError(w, http.StatusBadRequest, "Value is required")
		return
	}

	result, err := h.intel.LookupProvider(r.Context(), r.PathValue("provider"), indicatorType, value)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	response.JSONSuccess(w, result)
}

func (h *IntelHandler) AbuseFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.intel.AbuseFeed(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"entries": feed})
}

func (h *IntelHandler) OTXFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.intel.OTXFeed(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"pulses": feed})
}
