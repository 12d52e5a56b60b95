package intel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	abuseFeedTTL = 12 * time.Hour
	otxFeedTTL   = time.Hour
)

// feedCache holds the two feed payloads with independent TTLs. Feeds are
// expensive and coarse, so stale-until-expiry is fine.
type feedCache struct {
	mu      sync.Mutex
	entries map[string]feedEntry
}

type feedEntry struct {
	data    interface{}
	expires time.Time
}

func (f *feedCache) get(key string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.data, true
}

func (f *feedCache) put(key string, data interface{}, ttl time.Duration) {
	f.mu.Lock()
	if f.entries == nil {
		f.entries = make(map[string]feedEntry)
	}
	f.entries[key] = feedEntry{data: data, expires: time.Now().Add(ttl)}
	f.mu.Unlock()
}

// AbuseFeedEntry is one blacklisted address from the AbuseIPDB feed.
type AbuseFeedEntry struct {
	IPAddress            string `json:"ipAddress"`
	AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
	LastReportedAt       string `json:"lastReportedAt"`
}

// AbuseFeed returns the AbuseIPDB blacklist, at most 10 entries with
// confidence 90 and above, cached for 12 hours.
func (s *Service) AbuseFeed(ctx context.Context) ([]AbuseFeedEntry, error) {
	if cached, ok := s.feeds.get("abuse"); ok {
		return cached.([]AbuseFeedEntry), nil
	}
	if s.abuseKey == "" {
		return nil, errors.New("abuseipdb api key not configured")
	}
	if ok, wait := s.abuseLimiter.Allow(); !ok {
		return nil, fmt.Errorf("rate limited, retry in %ds", int(wait.Seconds()))
	}

	var payload struct {
		Data []AbuseFeedEntry `json:"data"`
	}
	status, err := s.getJSON(ctx,
		s.abuseBase+"/blacklist?limit=10&confidenceMinimum=90",
		map[string]string{"Key": s.abuseKey, "Accept": "application/json"}, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("abuseipdb feed returned HTTP %d", status)
	}

	s.feeds.put("abuse", payload.Data, abuseFeedTTL)
	return payload.Data, nil
}

// OTXPulse is one subscribed pulse from the AlienVault OTX feed.
type OTXPulse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Created     string   `json:"created"`
	Tags        []string `json:"tags"`
}

// OTXFeed returns the 10 most recent subscribed pulses, cached for an hour.
func (s *Service) OTXFeed(ctx context.Context) ([]OTXPulse, error) {
	if cached, ok := s.feeds.get("otx"); ok {
		return cached.([]OTXPulse), nil
	}
	if s.otxKey == "" {
		return nil, errors.New("otx api key not configured")
	}

	var payload struct {
		Results []OTXPulse `json:"results"`
	}
	status, err := s.getJSON(ctx,
		s.otxBase+"/pulses/subscribed?limit=10",
		map[string]string{"X-OTX-API-KEY": s.otxKey}, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("otx feed returned HTTP %d", status)
	}

	s.feeds.put("otx", payload.Results, otxFeedTTL)
	return payload.Results, nil
}
