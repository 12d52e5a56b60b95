package detector

import (
	"errors"
	"sync"
)

// Thresholds and routing URLs, mutable through the control plane.
// The ladder must stay ordered: very_high >= high >= medium >= low.
type SettingsValues struct {
	VeryHighRisk   float64 `json:"very_high_risk"`
	HighRisk       float64 `json:"high_risk"`
	MediumRisk     float64 `json:"medium_risk"`
	LowRisk        float64 `json:"low_risk"`
	UpstreamURL    string  `json:"upstream_url"`
	MLServiceURL   string  `json:"ml_service_url"`
	LogSafeTraffic bool    `json:"log_safe_traffic"`
}

var ErrThresholdOrder = errors.New("thresholds must satisfy very_high >= high >= medium >= low")

func (v SettingsValues) validate() error {
	for _, f := range []float64{v.VeryHighRisk, v.HighRisk, v.MediumRisk, v.LowRisk} {
		if f < 0 || f > 1 {
			return errors.New("thresholds must be within [0, 1]")
		}
	}
	if v.VeryHighRisk >= v.HighRisk && v.HighRisk >= v.MediumRisk && v.MediumRisk >= v.LowRisk {
		return nil
	}
	return ErrThresholdOrder
}

// Settings guards the live values with an RW-mutex; reads dominate.
type Settings struct {
	mu     sync.RWMutex
	values SettingsValues
}

func NewSettings(upstreamURL, mlURL string, logSafe bool) *Settings {
	return &Settings{values: SettingsValues{
		VeryHighRisk:   0.85,
		HighRisk:       0.70,
		MediumRisk:     0.50,
		LowRisk:        0.30,
		UpstreamURL:    upstreamURL,
		MLServiceURL:   mlURL,
		LogSafeTraffic: logSafe,
	}}
}

func (s *Settings) Get() SettingsValues {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// SettingsPatch carries a partial update; nil fields are untouched.
type SettingsPatch struct {
	VeryHighRisk   *float64 `json:"very_high_risk"`
	HighRisk       *float64 `json:"high_risk"`
	MediumRisk     *float64 `json:"medium_risk"`
	LowRisk        *float64 `json:"low_risk"`
	UpstreamURL    *string  `json:"upstream_url"`
	MLServiceURL   *string  `json:"ml_service_url"`
	LogSafeTraffic *bool    `json:"log_safe_traffic"`
}

// Update applies a patch atomically. A patch that would break the threshold
// ordering is rejected in full and the prior values remain.
func (s *Settings) Update(p SettingsPatch) (SettingsValues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.values
	if p.VeryHighRisk != nil {
		next.VeryHighRisk = *p.VeryHighRisk
	}
	if p.HighRisk != nil {
		next.HighRisk = *p.HighRisk
	}
	if p.MediumRisk != nil {
		next.MediumRisk = *p.MediumRisk
	}
	if p.LowRisk != nil {
		next.LowRisk = *p.LowRisk
	}
	if p.UpstreamURL != nil {
		next.UpstreamURL = *p.UpstreamURL
	}
	if p.MLServiceURL != nil {
		next.MLServiceURL = *p.MLServiceURL
	}
	if p.LogSafeTraffic != nil {
		next.LogSafeTraffic = *p.LogSafeTraffic
	}

	if err := next.validate(); err != nil {
		return s.values, err
	}
	s.values = next
	return s.values, nil
}
