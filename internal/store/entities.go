package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hydra-waf/internal/models"
)

// --- RESTRICTIONS (block list) ---

func (s *Store) ListRestrictions(ctx context.Context) ([]models.Restriction, error) {
	out := []models.Restriction{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT * FROM restriction ORDER BY created_at DESC`)
	return out, err
}

func (s *Store) AddRestriction(ctx context.Context, rType, value string, userID int64) (*models.Restriction, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO restriction (restriction_type, restriction_description) VALUES (?, ?)`,
		rType, value)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	_ = s.AddSysLog(ctx, models.SysLog{
		Message:       fmt.Sprintf("Restriction added: %s = %s", rType, value),
		RestrictionID: &id,
		UserID:        &userID,
	})
	return &models.Restriction{RestrictionID: id, Type: rType, Value: value, CreatedAt: time.Now().UTC()}, nil
}

func (s *Store) DeleteRestriction(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM restriction WHERE restriction_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRestriction looks for an exact (type, value) block-list match.
func (s *Store) FindRestriction(ctx context.Context, rType, value string) (*models.Restriction, error) {
	var r models.Restriction
	err := s.DB.GetContext(ctx, &r,
		`SELECT * FROM restriction WHERE restriction_type = ? AND restriction_description = ? LIMIT 1`,
		rType, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

// --- STORED SIGNATURES ---

func (s *Store) ListSignatures(ctx context.Context) ([]models.StoredSignature, error) {
	out := []models.StoredSignature{}
	err := s.DB.SelectContext(ctx, &out, `SELECT * FROM signature ORDER BY signature_id`)
	return out, err
}

func (s *Store) AddSignature(ctx context.Context, sigType, content string) (*models.StoredSignature, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO signature (signature_type, signature_content) VALUES (?, ?)`, sigType, content)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &models.StoredSignature{SignatureID: id, Type: sigType, Content: content}, nil
}

func (s *Store) UpdateSignature(ctx context.Context, id int64, sigType, content string) (*models.StoredSignature, error) {
	var sig models.StoredSignature
	err := s.DB.GetContext(ctx, &sig, `SELECT * FROM signature WHERE signature_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sigType != "" {
		sig.Type = sigType
	}
	if content != "" {
		sig.Content = content
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE signature SET signature_type = ?, signature_content = ? WHERE signature_id = ?`,
		sig.Type, sig.Content, id)
	return &sig, err
}

func (s *Store) DeleteSignature(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM signature WHERE signature_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- MODEL METADATA ---

// ListModels returns model metadata; an empty table yields the static
// three-model description so the dashboard always has something to show.
func (s *Store) ListModels(ctx context.Context) ([]models.MLModel, error) {
	rows := []models.MLModel{}
	if err := s.DB.SelectContext(ctx, &rows, `SELECT * FROM model ORDER BY model_id`); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		desc := func(s string) *string { return &s }
		return []models.MLModel{
			{ModelID: 1, Type: "ZeroDay Deep Learning", Weight: 70, Description: desc("Primary deep learning model (autoencoder) for zero-day attack detection")},
			{ModelID: 2, Type: "Signature Engine", Weight: 20, Description: desc("Regex-based pattern matching for known signatures")},
			{ModelID: 3, Type: "LLM Analysis", Weight: 10, Description: desc("AI-powered attack explanation and patching")},
		}, nil
	}
	for i := range rows {
		rows[i].Weight = rows[i].Threshold * 100
	}
	return rows, nil
}

// --- PATCHING REPORTS ---

func (s *Store) AddReport(ctx context.Context, details string, wlogID *int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO patching_report (report_details, wlog_id) VALUES (?, ?)`, details, wlogID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListReports(ctx context.Context, days int) ([]models.PatchingReport, error) {
	if days != 3 && days != 7 && days != 30 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	out := []models.PatchingReport{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT r.report_id, r.report_details, r.report_timestamp, r.wlog_id,
			COALESCE(w.wlog_type, 'Unknown') AS vulnerability,
			COALESCE(w.severity, 'Medium') AS severity
		FROM patching_report r LEFT JOIN waf_log w ON r.wlog_id = w.wlog_id
		WHERE r.report_timestamp >= ? ORDER BY r.report_timestamp DESC`, cutoff)
	return out, err
}

func (s *Store) GetReport(ctx context.Context, id int64) (*models.PatchingReport, error) {
	var r models.PatchingReport
	err := s.DB.GetContext(ctx, &r,
		`SELECT r.report_id, r.report_details, r.report_timestamp, r.wlog_id,
			COALESCE(w.wlog_type, 'Unknown') AS vulnerability,
			COALESCE(w.severity, 'Medium') AS severity
		FROM patching_report r LEFT JOIN waf_log w ON r.wlog_id = w.wlog_id
		WHERE r.report_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

// --- SUSPICIOUS USER PROFILES ---

func (s *Store) ListProfiles(ctx context.Context) ([]models.SuspiciousUserProfile, error) {
	out := []models.SuspiciousUserProfile{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT * FROM suspicious_user_profile ORDER BY created_at DESC`)
	return out, err
}

func (s *Store) AddProfile(ctx context.Context, p models.SuspiciousUserProfile) (*models.SuspiciousUserProfile, error) {
	if p.SuspicionLevel == "" {
		p.SuspicionLevel = "Low"
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO suspicious_user_profile
			(sus_username, pc_number, ip_address, mac_address, session_cookie, suspicion_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.SusUsername, p.PCNumber, p.IPAddress, p.MACAddress, p.SessionCookie, p.SuspicionLevel)
	if err != nil {
		return nil, err
	}
	p.SusUserID, _ = res.LastInsertId()
	p.CreatedAt = time.Now().UTC()
	return &p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id int64, p models.SuspiciousUserProfile) (*models.SuspiciousUserProfile, error) {
	var existing models.SuspiciousUserProfile
	err := s.DB.GetContext(ctx, &existing, `SELECT * FROM suspicious_user_profile WHERE sus_user_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.SusUsername != "" {
		existing.SusUsername = p.SusUsername
	}
	if p.PCNumber != nil {
		existing.PCNumber = p.PCNumber
	}
	if p.IPAddress != nil {
		existing.IPAddress = p.IPAddress
	}
	if p.MACAddress != nil {
		existing.MACAddress = p.MACAddress
	}
	if p.SessionCookie != nil {
		existing.SessionCookie = p.SessionCookie
	}
	if p.SuspicionLevel != "" {
		existing.SuspicionLevel = p.SuspicionLevel
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE suspicious_user_profile SET sus_username = ?, pc_number = ?, ip_address = ?,
			mac_address = ?, session_cookie = ?, suspicion_level = ? WHERE sus_user_id = ?`,
		existing.SusUsername, existing.PCNumber, existing.IPAddress,
		existing.MACAddress, existing.SessionCookie, existing.SuspicionLevel, id)
	return &existing, err
}

func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM suspicious_user_profile WHERE sus_user_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- WHITELISTED REQUESTS (false positives) ---

func (s *Store) AddWhitelist(ctx context.Context, wlogID *int64, reason string, userID int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO whitelisted_request (wlog_id, reason, user_id) VALUES (?, ?, ?)`,
		wlogID, reason, userID)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	_ = s.AddSysLog(ctx, models.SysLog{
		Message: "Request whitelisted: " + reason,
		WlID:    &id,
	})
	return id, nil
}

func (s *Store) ListWhitelists(ctx context.Context) ([]models.WhitelistedRequest, error) {
	out := []models.WhitelistedRequest{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT * FROM whitelisted_request ORDER BY made_at DESC`)
	return out, err
}

// --- SYSTEM ACTIVITY LOG ---

func (s *Store) AddSysLog(ctx context.Context, entry models.SysLog) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sys_log
			(message, restriction_id, model_id, signature_id, user_id, sus_user_id, report_id, wl_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Message, entry.RestrictionID, entry.ModelID, entry.SignatureID,
		entry.UserID, entry.SusUserID, entry.ReportID, entry.WlID)
	return err
}

func (s *Store) ListSysLogs(ctx context.Context, limit, offset int) ([]models.SysLog, int, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []models.SysLog{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT * FROM sys_log ORDER BY slog_timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM sys_log`); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
