package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hydra-waf/internal/models"
)

// CategoryFromReason maps a pipeline reason string to its attack category.
// Signature ids carry the family in their name; ML reasons group together.
func CategoryFromReason(reason string) string {
	if reason == "" {
		return "Unknown"
	}
	if sigID, ok := strings.CutPrefix(reason, "SIG:"); ok {
		switch {
		case strings.Contains(sigID, "SQL"):
			return "SQLi"
		case strings.Contains(sigID, "XSS"):
			return "XSS"
		case strings.Contains(sigID, "CMD"), strings.Contains(sigID, "COMMAND"):
			return "Command Injection"
		case strings.Contains(sigID, "TRAVERSAL"), strings.Contains(sigID, "LFI"):
			return "Path Traversal"
		case strings.Contains(sigID, "CSRF"):
			return "CSRF"
		case strings.Contains(sigID, "SSRF"):
			return "SSRF"
		default:
			return sigID
		}
	}
	if strings.HasPrefix(reason, "ML:") {
		return "ML Detected"
	}
	return "Unknown"
}

// Ingest persists one pipeline event as a WAFLog row, raising an Alert for
// blocked/alerted verdicts and recording the activity in sys_log. The whole
// ingest is transactional: a failing step leaves no partial rows behind.
func (s *Store) Ingest(ctx context.Context, ev models.IngestEvent) (int64, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	severity := ev.Severity
	if severity == "" {
		severity = "Medium"
	}
	source := ev.DetectionSource
	if source == "" {
		source = "WAF"
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO waf_log (intercepted_req, wlog_type, severity, detection_source) VALUES (?, ?, ?, ?)`,
		ev.URL+" "+ev.Body, CategoryFromReason(ev.Reason), severity, source)
	if err != nil {
		return 0, err
	}
	wlogID, _ := res.LastInsertId()

	if ev.Verdict == models.VerdictBlocked || ev.Verdict == models.VerdictAlert {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alert (alert_type, status, wlog_id) VALUES (?, 'open', ?)`,
			ev.Reason, wlogID); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sys_log (message) VALUES (?)`,
		"Ingested "+severity+" severity WAF log: "+CategoryFromReason(ev.Reason)); err != nil {
		return 0, err
	}

	return wlogID, tx.Commit()
}

func (s *Store) ListWAFLogs(ctx context.Context, limit, offset int) ([]models.WAFLog, int, error) {
	if limit <= 0 {
		limit = 100
	}
	logs := []models.WAFLog{}
	err := s.DB.SelectContext(ctx, &logs,
		`SELECT * FROM waf_log ORDER BY wlog_timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM waf_log`); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *Store) GetWAFLog(ctx context.Context, id int64) (*models.WAFLog, error) {
	var l models.WAFLog
	err := s.DB.GetContext(ctx, &l, `SELECT * FROM waf_log WHERE wlog_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &l, err
}

// ListAlerts joins each alert to its WAF log for severity/source/description.
// Without an explicit severity filter only Medium and above are returned.
func (s *Store) ListAlerts(ctx context.Context, status, severity string) ([]models.Alert, error) {
	query := `SELECT a.alert_id, a.alert_type, a.status, a.created_at, a.resolved_at, a.wlog_id,
		COALESCE(w.severity, 'Medium') AS severity,
		COALESCE(w.detection_source, 'Unknown') AS source,
		COALESCE(LEFT(w.intercepted_req, 200), '') AS description
		FROM alert a LEFT JOIN waf_log w ON a.wlog_id = w.wlog_id`
	var conds []string
	var args []interface{}
	if status != "" {
		conds = append(conds, "a.status = ?")
		args = append(args, status)
	}
	if severity != "" {
		conds = append(conds, "w.severity = ?")
		args = append(args, severity)
	} else {
		conds = append(conds, "w.severity IN ('Medium', 'High', 'Critical')")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.created_at DESC LIMIT 100"

	alerts := []models.Alert{}
	err := s.DB.SelectContext(ctx, &alerts, query, args...)
	return alerts, err
}

// CheckAlert marks an alert acknowledged and records who did it.
func (s *Store) CheckAlert(ctx context.Context, alertID, userID int64, username string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE alert SET status = 'checked', resolved_at = ? WHERE alert_id = ?`,
		time.Now().UTC(), alertID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.AddSysLog(ctx, models.SysLog{
		Message: "Alert checked by " + username,
		UserID:  &userID,
	})
}
