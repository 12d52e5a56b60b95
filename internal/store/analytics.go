package store

import (
	"context"
	"time"
)

// KPIs are the dashboard headline numbers. False positives are requests an
// operator whitelisted; model confidence comes from the model table.
type KPIs struct {
	TotalRequests   int     `json:"totalRequests"`
	BlockedAttacks  int     `json:"blockedAttacks"`
	FalsePositives  int     `json:"falsePositives"`
	ModelConfidence float64 `json:"modelConfidence"`
}

func (s *Store) GetKPIs(ctx context.Context) (*KPIs, error) {
	k := &KPIs{ModelConfidence: 0.87}
	if err := s.DB.GetContext(ctx, &k.TotalRequests, `SELECT COUNT(*) FROM waf_log`); err != nil {
		return nil, err
	}
	if err := s.DB.GetContext(ctx, &k.BlockedAttacks, `SELECT COUNT(*) FROM alert WHERE status = 'open'`); err != nil {
		return nil, err
	}
	if err := s.DB.GetContext(ctx, &k.FalsePositives, `SELECT COUNT(*) FROM whitelisted_request`); err != nil {
		return nil, err
	}
	var threshold float64
	err := s.DB.GetContext(ctx, &threshold,
		`SELECT model_threshold FROM model ORDER BY model_id LIMIT 1`)
	if err == nil && threshold > 0 {
		k.ModelConfidence = threshold
	}
	return k, nil
}

// Traffic returns daily request counts for the last 30 days, oldest first.
// Bucketing happens in Go with calendar math rather than SQL string slicing.
func (s *Store) Traffic(ctx context.Context) ([]int, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -30)

	var stamps []time.Time
	if err := s.DB.SelectContext(ctx, &stamps,
		`SELECT wlog_timestamp FROM waf_log WHERE wlog_timestamp >= ?`, cutoff); err != nil {
		return nil, err
	}

	counts := make([]int, 30)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, ts := range stamps {
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		ago := int(today.Sub(day).Hours() / 24)
		if ago >= 0 && ago < 30 {
			counts[29-ago]++
		}
	}
	return counts, nil
}

// OWASPBreakdown counts WAF logs per attack category.
func (s *Store) OWASPBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryxContext(ctx,
		`SELECT wlog_type, COUNT(*) FROM waf_log GROUP BY wlog_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// Heatmap buckets the last 7 days of anomalies into weekday (Sunday = 0) by
// hour cells, each normalized against the busiest cell.
func (s *Store) Heatmap(ctx context.Context) ([7][24]float64, error) {
	var heatmap [7][24]float64
	cutoff := time.Now().UTC().AddDate(0, 0, -7)

	var stamps []time.Time
	if err := s.DB.SelectContext(ctx, &stamps,
		`SELECT wlog_timestamp FROM waf_log WHERE wlog_timestamp >= ?`, cutoff); err != nil {
		return heatmap, err
	}

	var counts [7][24]int
	maxCount := 0
	for _, ts := range stamps {
		ts = ts.UTC()
		day := int(ts.Weekday())
		hour := ts.Hour()
		counts[day][hour]++
		if counts[day][hour] > maxCount {
			maxCount = counts[day][hour]
		}
	}
	if maxCount == 0 {
		return heatmap, nil
	}
	for d := 0; d < 7; d++ {
		for h := 0; h < 24; h++ {
			heatmap[d][h] = float64(counts[d][h]) / float64(maxCount)
		}
	}
	return heatmap, nil
}
